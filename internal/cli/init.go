// Package cli consolidates the initialization steps shared by the
// server, worker and one-shot analyzer binaries.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spendscope/internal/anomaly"
	"spendscope/internal/config"
	applog "spendscope/internal/log"
	"spendscope/internal/rules"
	"spendscope/internal/storage"
)

// SetupLogger initializes structured logging for a binary and sets it
// as the process default.
func SetupLogger(component string) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Component = component
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development. Errors are
// ignored: the file is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it, exiting
// the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err.Error())
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens the run repository, exiting the process on failure.
func InitSQLite(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err.Error(), "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// LoadRules returns the categorization table: the configured YAML file
// when set, the built-in defaults otherwise. Exits on an unreadable or
// invalid file since a half-loaded rule set silently miscategorizes.
func LoadRules(logger *applog.Logger, path string) rules.Table {
	if path == "" {
		return rules.DefaultTable()
	}
	table, err := rules.LoadTable(path)
	if err != nil {
		logger.Error("Failed to load categorization rules", applog.FieldError, err.Error(), "path", path)
		os.Exit(1)
	}
	logger.Info("Loaded categorization rules", "path", path, "categories", len(table))
	return table
}

// NewDetector builds the anomaly detector from configuration.
func NewDetector(cfg *config.Config) *anomaly.IsolationForest {
	return anomaly.NewIsolationForest(cfg.Contamination, cfg.DetectorSeed)
}

// GracefulShutdown returns a context cancelled on SIGINT/SIGTERM and a
// channel closed once the cleanup callback has run.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		cancel()
		close(done)
	}()

	return ctx, done
}
