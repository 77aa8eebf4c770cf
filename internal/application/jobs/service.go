// Package jobs implements the analysis job orchestrator: submission,
// the bounded worker pool, the state machine and result persistence.
package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bramasta/verimedia/internal/application"
	"github.com/bramasta/verimedia/internal/domain/analysis"
	domain "github.com/bramasta/verimedia/internal/domain/jobs"
	"github.com/bramasta/verimedia/internal/telemetry"
)

// Options is the pipeline's externally supplied configuration surface,
// read once at construction.
type Options struct {
	Threshold     float64
	Workers       int
	MaxQueueDepth int
	RetryLimit    int
}

// Service owns the job lifecycle. Jobs are independent; no cross-job
// ordering is guaranteed. Within a job the stages run strictly
// sequentially: classify -> extract -> analyze -> aggregate.
type Service struct {
	Repo       domain.Repository
	Blobs      domain.BlobStore
	Classifier analysis.Classifier
	Analyzers  map[analysis.Modality]analysis.Analyzer
	Clock      application.Clock
	Log        zerolog.Logger
	Metrics    *telemetry.Metrics

	opts  Options
	queue chan domain.ID
	depth atomic.Int64

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewService(
	repo domain.Repository,
	blobs domain.BlobStore,
	classifier analysis.Classifier,
	analyzers map[analysis.Modality]analysis.Analyzer,
	clock application.Clock,
	log zerolog.Logger,
	metrics *telemetry.Metrics,
	opts Options,
) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.MaxQueueDepth <= 0 {
		opts.MaxQueueDepth = 64
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.5
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		Repo:       repo,
		Blobs:      blobs,
		Classifier: classifier,
		Analyzers:  analyzers,
		Clock:      clock,
		Log:        log,
		Metrics:    metrics,
		opts:       opts,
		queue:      make(chan domain.ID, opts.MaxQueueDepth),
		runCtx:     ctx,
		cancel:     cancel,
	}
}

// Start spawns the worker pool. Pool size bounds concurrent inference;
// everything beyond it waits in the queue as `queued`.
func (s *Service) Start() {
	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

// Stop interrupts workers between units and waits for them to drain.
// Jobs still in the queue keep their queued state.
func (s *Service) Stop(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitCommand references an upload already sitting in the blob store.
type SubmitCommand struct {
	FileRef      string
	FileName     string
	DeclaredMIME string
}

// Submit creates a job in the queued state and schedules it. Fast and
// non-blocking: the pipeline itself runs on the worker pool. When the
// queue is at its configured depth the submission fails with
// ErrOverloaded and no job record is created.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (domain.ID, error) {
	if cmd.FileRef == "" {
		return "", fmt.Errorf("fileRef is required")
	}
	// surface decisively unsupported declared types synchronously;
	// anything ambiguous is sniffed inside the job
	if err := s.Classifier.QuickReject(cmd.DeclaredMIME); err != nil {
		return "", err
	}

	// reserve a queue slot before touching the repository so an
	// overloaded submission leaves no trace
	if s.depth.Add(1) > int64(s.opts.MaxQueueDepth) {
		s.depth.Add(-1)
		return "", analysis.ErrOverloaded
	}

	id := domain.ID(uuid.New().String())
	job := domain.New(id, cmd.FileRef, cmd.FileName, cmd.DeclaredMIME, s.Clock.Now())
	if err := s.Repo.Save(ctx, job); err != nil {
		s.depth.Add(-1)
		return "", fmt.Errorf("save job: %w", err)
	}

	s.Metrics.QueueDepth.Inc()
	s.queue <- id // cap == MaxQueueDepth, reservation guarantees space
	return id, nil
}

// Status returns the job record, distinguishing queued/running from
// completed (with result), failed (with cause) and unknown ids.
func (s *Service) Status(ctx context.Context, id domain.ID) (*domain.Job, error) {
	return s.Repo.Get(ctx, id)
}

// Latest returns the most recently submitted jobs.
func (s *Service) Latest(ctx context.Context, limit int) ([]*domain.Job, error) {
	return s.Repo.Latest(ctx, limit)
}

func (s *Service) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.runCtx.Done():
			return
		case id := <-s.queue:
			s.depth.Add(-1)
			s.Metrics.QueueDepth.Dec()
			s.run(id)
		}
	}
}

// run executes one job end to end. Pipeline errors never escape this
// boundary; they become a failed state with a structured cause.
func (s *Service) run(id domain.ID) {
	ctx := s.runCtx
	// state writes use a detached context: a job interrupted by
	// shutdown must still land as failed/"canceled", not stay running
	// because the store rejected the already-canceled context
	store := context.WithoutCancel(s.runCtx)
	start := s.Clock.Now()

	job, err := s.Repo.Get(store, id)
	if err != nil {
		s.Log.Error().Err(err).Str("job_id", string(id)).Msg("load queued job")
		return
	}
	if err := job.Transition(domain.StateRunning); err != nil {
		s.Log.Error().Err(err).Str("job_id", string(id)).Msg("job not runnable")
		return
	}
	if err := s.Repo.UpdateState(store, id, domain.StateRunning, ""); err != nil {
		s.Log.Error().Err(err).Str("job_id", string(id)).Msg("mark running")
		return
	}

	result, runErr := s.execute(ctx, job, start)
	now := s.Clock.Now()
	modality := string(job.Modality)
	if modality == "" {
		modality = "unknown"
	}

	if runErr != nil {
		cause := analysis.CauseOf(runErr)
		if err := job.Fail(cause, now); err != nil {
			s.Log.Error().Err(err).Str("job_id", string(id)).Msg("fail transition")
			return
		}
		if err := s.Repo.Save(store, job); err != nil {
			s.Log.Error().Err(err).Str("job_id", string(id)).Msg("persist failed state")
		}
		s.Metrics.JobsFailed.WithLabelValues(modality, cause).Inc()
		s.Log.Warn().
			Str("job_id", string(id)).
			Str("modality", modality).
			Str("cause", cause).
			Err(runErr).
			Msg("analysis failed")
		return
	}

	if err := job.Complete(result, now); err != nil {
		s.Log.Error().Err(err).Str("job_id", string(id)).Msg("complete transition")
		return
	}
	// result and completed state land in one upsert
	if err := s.Repo.Save(store, job); err != nil {
		s.Log.Error().Err(err).Str("job_id", string(id)).Msg("persist result")
		return
	}

	s.Metrics.JobsCompleted.WithLabelValues(modality).Inc()
	s.Metrics.JobDuration.WithLabelValues(modality).Observe(result.ProcessingTimeSeconds)
	s.Log.Info().
		Str("job_id", string(id)).
		Str("modality", modality).
		Bool("is_fake", result.IsFake).
		Float64("confidence", result.Confidence).
		Str("model_used", result.ModelUsed).
		Msg("analysis completed")
}

func (s *Service) execute(ctx context.Context, job *domain.Job, start time.Time) (*domain.Result, error) {
	data, err := s.Blobs.Get(ctx, job.FileRef)
	if err != nil {
		return nil, fmt.Errorf("fetch blob %s: %w", job.FileRef, err)
	}

	modality, err := s.Classifier.Classify(job.DeclaredMIME, job.FileName, data)
	if err != nil {
		return nil, err
	}
	if err := job.SetModality(modality); err != nil {
		return nil, err
	}
	if err := s.Repo.Save(ctx, job); err != nil {
		s.Log.Warn().Err(err).Str("job_id", string(job.ID)).Msg("persist modality")
	}
	s.Metrics.JobsSubmitted.WithLabelValues(string(modality)).Inc()

	az, ok := s.Analyzers[modality]
	if !ok {
		return nil, fmt.Errorf("no analyzer for %s: %w", modality, analysis.ErrUnsupportedMediaType)
	}

	// bounded retry, transient inference errors only
	var outcome *analysis.Outcome
	for attempt := 0; ; attempt++ {
		outcome, err = az.Analyze(ctx, data)
		if err == nil {
			break
		}
		if !analysis.Retryable(err) || attempt >= s.opts.RetryLimit {
			return nil, err
		}
		s.Metrics.Retries.Inc()
		s.Log.Warn().
			Str("job_id", string(job.ID)).
			Int("attempt", attempt+1).
			Err(err).
			Msg("transient inference error, retrying")
	}

	verdict, err := analysis.Aggregate(outcome.Units, s.opts.Threshold)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(outcome.ModelUsed, "heuristic-") {
		s.Metrics.Fallbacks.WithLabelValues(string(modality)).Inc()
	}

	scores := make([]float64, len(outcome.Units))
	for i := range outcome.Units {
		scores[i] = outcome.Units[i].Score
	}

	return &domain.Result{
		JobID:                 job.ID,
		IsFake:                verdict.IsFake,
		Confidence:            verdict.Confidence,
		ModelUsed:             outcome.ModelUsed,
		ProcessingTimeSeconds: s.Clock.Now().Sub(start).Seconds(),
		Metadata: domain.Metadata{
			Cues:                outcome.Cues,
			UnitScores:          scores,
			FramesAnalyzed:      outcome.Meta.FramesAnalyzed,
			TemporalConsistency: outcome.Meta.TemporalConsistency,
			DurationSeconds:     outcome.Meta.DurationSeconds,
			SampleRate:          outcome.Meta.SampleRate,
			Width:               outcome.Meta.Width,
			Height:              outcome.Meta.Height,
		},
	}, nil
}
