package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"spendscope/internal/amqp"
	"spendscope/internal/cli"
	apphttp "spendscope/internal/http"
	applog "spendscope/internal/log"
	"spendscope/internal/report"
	"spendscope/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	table := cli.LoadRules(logger, cfg.RulesPath)
	detector := cli.NewDetector(cfg)
	renderer := report.New(cfg.OutputDir)

	// Run events are optional: without a broker the worker's periodic
	// sweep still picks up pending exports.
	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, run events disabled", applog.FieldError, err.Error())
		} else {
			defer client.Close()
			events = client
		}
	}

	svc := services.NewAnalyzerService(detector, table, renderer, repo, events)
	if err := svc.LoadBudgets(context.Background()); err != nil {
		logger.Warn("Could not load persisted budgets, using defaults", applog.FieldError, err.Error())
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, repo, logger.WithComponent(applog.ComponentHTTP))
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err.Error())
		}
	})

	logger.Info("Starting spendscope server", "port", cfg.Port, "output_dir", cfg.OutputDir)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", applog.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
