package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/bramasta/verimedia/internal/application"
	"github.com/bramasta/verimedia/internal/application/explain"
	appjobs "github.com/bramasta/verimedia/internal/application/jobs"
	"github.com/bramasta/verimedia/internal/config"
	"github.com/bramasta/verimedia/internal/domain/analysis"
	domjobs "github.com/bramasta/verimedia/internal/domain/jobs"
	openaicli "github.com/bramasta/verimedia/internal/infra/ai/openai"
	"github.com/bramasta/verimedia/internal/infra/analyzer"
	"github.com/bramasta/verimedia/internal/infra/classify"
	memrepo "github.com/bramasta/verimedia/internal/infra/db/memory"
	mysqlrepo "github.com/bramasta/verimedia/internal/infra/db/mysql"
	pgrepo "github.com/bramasta/verimedia/internal/infra/db/postgres"
	"github.com/bramasta/verimedia/internal/infra/extract"
	"github.com/bramasta/verimedia/internal/infra/heuristic"
	"github.com/bramasta/verimedia/internal/infra/httpserver"
	"github.com/bramasta/verimedia/internal/infra/model/tflite"
	"github.com/bramasta/verimedia/internal/infra/storage"
	"github.com/bramasta/verimedia/internal/telemetry"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx := context.Background()

	// job + result store
	var repo domjobs.Repository
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlrepo.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatal().Err(err).Msg("mysql connect error")
		}
		defer db.Close()
		repo = mysqlrepo.NewJobRepository(db)
	case "postgres":
		db, err := pgrepo.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connect error")
		}
		defer db.Close()
		repo = pgrepo.NewJobRepository(db)
	case "memory":
		repo = memrepo.NewJobRepository()
	default:
		log.Fatal().Str("driver", cfg.Database.Driver).Msg("unknown database driver")
	}

	// blob store
	var blobs domjobs.BlobStore
	switch cfg.Storage.Backend {
	case "minio":
		store, err := storage.New(ctx,
			cfg.Storage.Minio.Endpoint,
			cfg.Storage.Minio.Region,
			cfg.Storage.Minio.BucketName,
			cfg.Storage.Minio.AccessKey,
			cfg.Storage.Minio.SecretKey,
			cfg.Storage.Minio.UseSSL,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("minio init error")
		}
		blobs = store
	case "local":
		store, err := storage.NewLocal(cfg.Storage.LocalDir)
		if err != nil {
			log.Fatal().Err(err).Msg("local storage init error")
		}
		blobs = store
	default:
		log.Fatal().Str("backend", cfg.Storage.Backend).Msg("unknown storage backend")
	}

	// primary models load once here; a failed load degrades that
	// modality to the heuristic path for the process lifetime
	threads := runtime.NumCPU()
	imageModel, err := tflite.New("tflite-image-authenticity", cfg.Pipeline.Image.ModelPath, threads)
	if err != nil {
		log.Warn().Err(err).Msg("image model unavailable, falling back to heuristics")
	}
	audioModel, err := tflite.New("tflite-audio-authenticity", cfg.Pipeline.Audio.ModelPath, threads)
	if err != nil {
		log.Warn().Err(err).Msg("audio model unavailable, falling back to heuristics")
	}
	defer imageModel.Close()
	defer audioModel.Close()

	// analyzers
	imageExtractor := extract.NewImageExtractor(cfg.Pipeline.Image.InputSize)
	imageAnalyzer := &analyzer.Image{
		Extractor: imageExtractor,
		Model:     imageModel,
		Fallback:  heuristic.NewImage(),
		Threshold: cfg.Pipeline.DecisionThreshold,
		Band:      cfg.Pipeline.LowTrustBand,
	}
	videoAnalyzer := &analyzer.Video{
		Extractor: extract.NewVideoExtractor(imageExtractor, cfg.Pipeline.Video.FrameRate, cfg.Pipeline.Video.MaxFrames),
		Frames:    imageAnalyzer,
	}
	audioAnalyzer := &analyzer.Audio{
		Extractor: extract.NewAudioExtractor(
			cfg.Pipeline.Audio.SampleRate,
			cfg.Pipeline.Audio.WindowSeconds,
			cfg.Pipeline.Audio.MaxDurationSeconds,
		),
		Model:     audioModel,
		Fallback:  heuristic.NewAudio(),
		Threshold: cfg.Pipeline.DecisionThreshold,
		Band:      cfg.Pipeline.LowTrustBand,
	}
	analyzers := map[analysis.Modality]analysis.Analyzer{
		analysis.ModalityImage: imageAnalyzer,
		analysis.ModalityVideo: videoAnalyzer,
		analysis.ModalityAudio: audioAnalyzer,
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	metrics := telemetry.New(registry)

	svc := appjobs.NewService(
		repo, blobs, classify.New(), analyzers,
		application.SystemClock{}, log.With().Str("component", "orchestrator").Logger(), metrics,
		appjobs.Options{
			Threshold:     cfg.Pipeline.DecisionThreshold,
			Workers:       cfg.Pipeline.Workers,
			MaxQueueDepth: cfg.Pipeline.MaxQueueDepth,
			RetryLimit:    cfg.Pipeline.RetryLimit,
		},
	)
	svc.Start()

	var explainSvc *explain.Service
	if cfg.AI.APIKey != "" {
		explainSvc = explain.NewService(openaicli.NewClient(cfg.AI.APIKey, cfg.AI.Model), repo)
	}

	models := []httpserver.ModelStatus{
		{Modality: "image", ModelID: imageModel.ID(), Available: imageModel.Available()},
		{Modality: "video", ModelID: imageModel.ID(), Available: imageModel.Available()},
		{Modality: "audio", ModelID: audioModel.ID(), Available: audioModel.Available()},
	}

	handler := httpserver.NewRouter(
		svc, explainSvc, blobs, models,
		cfg.Pipeline.MaxUploadBytes, registry,
		log.With().Str("component", "http").Logger(),
	)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	ctx2, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
	if err := svc.Stop(ctx2); err != nil {
		log.Error().Err(err).Msg("worker shutdown error")
	}
}
