package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"dreamframe/internal/adapter/repo"
	"dreamframe/internal/events"
	"dreamframe/internal/generation"
	"dreamframe/internal/infra"
	"dreamframe/internal/infra/credentials"
	"dreamframe/internal/observability"
	"dreamframe/internal/providers/video"
	"dreamframe/internal/queue"
	"dreamframe/internal/storage"
	"dreamframe/internal/synthesis"
	"dreamframe/internal/worker"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer rdb.Close()

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	metrics := observability.NewMetrics()
	providers := initVideoProviders(ctx, cfg, credentials.NewStore(runner), logger)
	if len(providers) == 0 {
		logger.Warn().Msg("worker: no remote providers available, every request will be rendered locally")
	}

	renderer := synthesis.NewRenderer(synthesis.Options{
		FPS:        cfg.SynthFPS,
		ShortSide:  cfg.SynthShortSide,
		Transcoder: synthesis.NewTranscoder(cfg.SynthFFmpegPath),
		Logger:     &logger,
	})

	orchestrator, err := generation.NewOrchestrator(generation.Options{
		Providers: providers,
		Monitor:   generation.NewMonitor(cfg.PollInterval, cfg.PollBudget, &logger),
		Retry: video.RetryPolicy{
			Retries:   cfg.ProviderRetries,
			BaseDelay: cfg.ProviderRetryBaseDelay,
			Logger:    &logger,
		},
		Store:       fileStore,
		Synthesizer: renderer,
		Metrics:     metrics,
		Logger:      &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure orchestrator")
	}

	publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, &logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn().Err(err).Msg("worker: close publisher")
		}
	}()

	workers, err := worker.NewPool(worker.Options{
		Queue:       queue.NewRedisQueue(rdb, cfg.QueueName),
		Repo:        repo.NewGenerationRepository(runner),
		Generator:   orchestrator,
		Images:      fileStore,
		Events:      publisher,
		Metrics:     metrics,
		Logger:      &logger,
		Concurrency: cfg.WorkerConcurrency,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure pool")
	}

	metricsServer := newMetricsServer(cfg, metrics)
	go func() {
		logger.Info().Str("addr", metricsServer.Addr()).Msg("worker: metrics listening")
		if err := metricsServer.Start(); err != nil {
			logger.Error().Err(err).Msg("worker: metrics server failed")
		}
	}()

	logger.Info().Strs("providers", orchestrator.Providers()).Msg("worker: provider order")
	if err := workers.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker: stopped with error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("worker: metrics shutdown")
	}
	logger.Info().Msg("worker: stopped")
}

func newMetricsServer(cfg *infra.Config, metrics *observability.Metrics) *infra.HTTPServer {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsCfg := *cfg
	metricsCfg.Port = cfg.MetricsPort
	return infra.NewHTTPServer(&metricsCfg, r)
}
