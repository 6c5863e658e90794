package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"spendscope/internal/amqp"
	"spendscope/internal/cli"
	"spendscope/internal/export"
	gexport "spendscope/internal/export/google"
	memexport "spendscope/internal/export/memory"
	applog "spendscope/internal/log"
	"spendscope/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting spendscope-worker", "backend", cfg.ExportBackend)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var exporter export.Exporter
	switch cfg.ExportBackend {
	case "sheets":
		client, err := gexport.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", applog.FieldError, err.Error())
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	default:
		exporter = memexport.New()
		logger.Info("In-memory exporter initialized")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
		os.Exit(1)
	}
	defer amqpClient.Close()

	exportWorker := worker.NewExportWorker(repo, exporter, cfg.ExportBatchSize)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Catch up on runs whose completion events were lost before we
	// start consuming new ones.
	if err := exportWorker.StartupCheck(ctx); err != nil {
		logger.Error("Startup export check failed", applog.FieldError, err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeRunCompleted(gctx, func(msg *amqp.RunCompletedMessage) error {
			return exportWorker.HandleRunCompleted(gctx, msg)
		})
	})

	g.Go(func() error {
		exportWorker.RunPeriodicSweep(gctx, cfg.ExportInterval)
		return gctx.Err()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", applog.FieldError, err.Error())
		os.Exit(1)
	}

	<-done
	logger.Info("Worker shutdown complete")
}
