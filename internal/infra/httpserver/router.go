package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bramasta/verimedia/internal/application/explain"
	appjobs "github.com/bramasta/verimedia/internal/application/jobs"
	domai "github.com/bramasta/verimedia/internal/domain/ai"
	"github.com/bramasta/verimedia/internal/domain/analysis"
	domain "github.com/bramasta/verimedia/internal/domain/jobs"
	"github.com/bramasta/verimedia/internal/middleware"
)

// ModelStatus reports primary adapter availability per modality.
type ModelStatus struct {
	Modality  string `json:"modality"`
	ModelID   string `json:"model_id"`
	Available bool   `json:"available"`
}

type Router struct {
	jobsSvc        *appjobs.Service
	explainSvc     *explain.Service
	blobs          domain.BlobStore
	models         []ModelStatus
	maxUploadBytes int64
}

func NewRouter(
	jobsSvc *appjobs.Service,
	explainSvc *explain.Service,
	blobs domain.BlobStore,
	models []ModelStatus,
	maxUploadBytes int64,
	registry *prometheus.Registry,
	log zerolog.Logger,
) http.Handler {
	r := &Router{
		jobsSvc:        jobsSvc,
		explainSvc:     explainSvc,
		blobs:          blobs,
		models:         models,
		maxUploadBytes: maxUploadBytes,
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestLogger(log))
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/analyses", r.wrap(r.handleSubmit))
		rt.Get("/analyses/latest", r.wrap(r.handleLatest))
		rt.Get("/analyses/{id}", r.wrap(r.handleStatus))
		rt.Post("/analyses/{id}/explain", r.wrap(r.handleExplain))
		rt.Get("/models", r.wrap(r.handleModels))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap translates pipeline errors into status codes. Callers only ever
// see the documented outcomes, never internals.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		switch {
		case errors.Is(err, analysis.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", err)
		case errors.Is(err, analysis.ErrOverloaded):
			writeError(w, http.StatusServiceUnavailable, "overloaded", err)
		case errors.Is(err, analysis.ErrUnsupportedMediaType):
			writeError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", err)
		case errors.Is(err, domai.ErrQuotaExceeded):
			writeError(w, http.StatusTooManyRequests, "ai_quota_exceeded", err)
		default:
			writeError(w, http.StatusInternalServerError, "internal", err)
		}
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": code,
		"detail": func() string {
			if status == http.StatusInternalServerError {
				return "internal error"
			}
			return err.Error()
		}(),
	})
}

// POST /v1/analyses
// multipart form, field "file"; stores the blob and schedules analysis.
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, r.maxUploadBytes)
	file, header, err := req.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("file field is required"))
		return nil
	}
	defer file.Close()

	declaredMIME := header.Header.Get("Content-Type")
	fileRef := uuid.New().String() + filepath.Ext(header.Filename)

	if err := r.storeUpload(req, file, header, fileRef, declaredMIME); err != nil {
		return err
	}

	id, err := r.jobsSvc.Submit(req.Context(), appjobs.SubmitCommand{
		FileRef:      fileRef,
		FileName:     header.Filename,
		DeclaredMIME: declaredMIME,
	})
	if err != nil {
		// a rejected submission must not leave an orphan upload behind
		if delErr := r.blobs.Delete(req.Context(), fileRef); delErr != nil {
			return fmt.Errorf("%w (cleanup: %v)", err, delErr)
		}
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	return json.NewEncoder(w).Encode(map[string]any{
		"job_id": id,
		"state":  domain.StateQueued,
	})
}

func (r *Router) storeUpload(req *http.Request, file multipart.File, header *multipart.FileHeader, fileRef, declaredMIME string) error {
	return r.blobs.Put(req.Context(), fileRef, file, header.Size, declaredMIME)
}

// GET /v1/analyses/{id}
// The four caller-visible outcomes: queued/running, completed with the
// result, failed with its cause, or 404 for an unknown id.
func (r *Router) handleStatus(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")

	job, err := r.jobsSvc.Status(req.Context(), domain.ID(id))
	if err != nil {
		return err
	}

	resp := map[string]any{
		"job_id":       job.ID,
		"state":        job.State,
		"submitted_at": job.SubmittedAt,
	}
	if job.Modality != "" {
		resp["modality"] = job.Modality
	}
	switch job.State {
	case domain.StateCompleted:
		resp["result"] = job.Result
		resp["completed_at"] = job.CompletedAt
	case domain.StateFailed:
		resp["cause"] = job.Cause
		resp["completed_at"] = job.CompletedAt
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(resp)
}

// GET /v1/analyses/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.jobsSvc.Latest(req.Context(), limit)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// POST /v1/analyses/{id}/explain
func (r *Router) handleExplain(w http.ResponseWriter, req *http.Request) error {
	if r.explainSvc == nil {
		writeError(w, http.StatusNotImplemented, "explain_disabled", fmt.Errorf("no ai client configured"))
		return nil
	}
	id := chi.URLParam(req, "id")

	text, err := r.explainSvc.Explain(req.Context(), domain.ID(id))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]string{
		"job_id":      id,
		"explanation": text,
	})
}

// GET /v1/models
func (r *Router) handleModels(w http.ResponseWriter, req *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(r.models)
}
