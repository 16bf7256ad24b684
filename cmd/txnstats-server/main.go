package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"txnstats/internal/cache"
	"txnstats/internal/cli"
	apphttp "txnstats/internal/http"
	"txnstats/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	result := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := result.Close(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()

	dataset := cli.InitLoader(logger, cfg, result)

	cacheManager := cache.NewManager(logger)
	cacheManager.Register(dataset.Cache())
	if cfg.CacheTTL > 0 {
		cacheManager.StartCleanup(cfg.CacheTTL)
	}

	srv := apphttp.NewServer(":"+cfg.Port, dataset, apphttp.Options{
		DefaultClient:      cfg.ReportClient,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		ReadyCheck:         cli.ReadyCheck(result),
		Logger:             logger,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
	})

	logger.Info("Starting txnstats server",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		log.FieldSource, dataset.Source())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
