package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"txnstats/internal/amqp"
	"txnstats/internal/cli"
	"txnstats/internal/log"
	"txnstats/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	request := flag.String("request", "", "publish a report request for this client and exit")
	flag.Parse()

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}
	amqpCfg := amqp.Config{
		URL:          cfg.AMQPURL,
		Exchange:     cfg.AMQPExchange,
		RequestQueue: cfg.AMQPRequestQueue,
		ReportQueue:  cfg.AMQPReportQueue,
	}

	if *request != "" {
		publishRequest(logger, amqpCfg, *request)
		return
	}

	logger.Info("Starting txnstats-worker")

	result := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := result.Close(); err != nil {
			logger.Warn("Backend cleanup failed", log.FieldError, err)
		}
	}()
	dataset := cli.InitLoader(logger, cfg, result)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	amqpClient, err := amqp.NewClientWithRetry(ctx, amqpCfg, 0, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	reportWorker := worker.NewReportWorker(dataset, amqpClient, cfg.ReportClient, logger)

	// Warm the cache so the first request does not pay for the read.
	logger.Info("Performing startup dataset check...")
	reportWorker.StartupCheck(ctx)

	go reportWorker.PeriodicRefresh(ctx, cfg.CacheTTL)

	if err := amqpClient.ConsumeReportRequests(ctx, reportWorker.HandleReportRequest); err != nil &&
		!errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}

func publishRequest(logger *log.Logger, cfg amqp.Config, client string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	amqpClient, err := amqp.NewClientWithRetry(ctx, cfg, 5, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	id, err := amqpClient.PublishReportRequest(ctx, client)
	if err != nil {
		logger.Error("Failed to publish report request", log.FieldError, err, log.FieldClient, client)
		os.Exit(1)
	}
	logger.Info("Report request published", log.FieldMessageID, id, log.FieldClient, client)
}
