package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"dreamframe/internal/adapter/repo"
	"dreamframe/internal/http/handlers"
	"dreamframe/internal/http/httpapi"
	"dreamframe/internal/infra"
	"dreamframe/internal/observability"
	"dreamframe/internal/queue"
	"dreamframe/internal/storage"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to connect database")
	}
	defer dbpool.Close()

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to connect redis")
	}
	defer rdb.Close()

	storagePath := cfg.StoragePath
	if abs, err := filepath.Abs(storagePath); err == nil {
		storagePath = abs
	}
	fileStore, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	runner := infra.NewSQLRunner(dbpool, logger)
	app := handlers.NewApp(repo.NewGenerationRepository(runner), queue.NewRedisQueue(rdb, cfg.QueueName), fileStore, logger)
	app.MaxUploadBytes = cfg.MaxUploadBytes
	app.Probes = map[string]handlers.Probe{
		"postgres": dbpool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	metrics := observability.NewMetrics()
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		Metrics:         metrics,
		MetricsHandler:  metrics.Handler(),
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
		StaticDir:       fileStore.BasePath(),
	})

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Msgf("api: listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api: http server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	logger.Info().Msg("api: stopped")
}
