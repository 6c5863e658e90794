// Package worker ships persisted runs to the configured export
// destination, driven by AMQP events with a periodic sweep as backup.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spendscope/internal/amqp"
	"spendscope/internal/core"
	"spendscope/internal/export"
	"spendscope/internal/storage"
)

// RunSource is the slice of the repository the worker needs.
type RunSource interface {
	GetRunByReportID(ctx context.Context, reportID string) (storage.Run, error)
	GetAnomalies(ctx context.Context, runID int64) ([]core.Expense, error)
	GetPendingExportRuns(ctx context.Context, limit int) ([]storage.Run, error)
	MarkRunExported(ctx context.Context, id int64) error
	MarkRunExportError(ctx context.Context, id int64) error
}

// ExportWorker exports finished runs. Events are the fast path; the
// pending sweep recovers runs whose events were lost.
type ExportWorker struct {
	storage   RunSource
	exporter  export.Exporter
	batchSize int
}

func NewExportWorker(storage RunSource, exporter export.Exporter, batchSize int) *ExportWorker {
	return &ExportWorker{
		storage:   storage,
		exporter:  exporter,
		batchSize: batchSize,
	}
}

// HandleRunCompleted processes a single run-completed event from AMQP.
func (w *ExportWorker) HandleRunCompleted(ctx context.Context, msg *amqp.RunCompletedMessage) error {
	slog.InfoContext(ctx, "Processing run completed message",
		"run_id", msg.RunID,
		"report_id", msg.ReportID)

	run, err := w.storage.GetRunByReportID(ctx, msg.ReportID)
	if err != nil {
		return fmt.Errorf("get run from storage: %w", err)
	}
	if run.ExportStatus == storage.ExportDone {
		slog.InfoContext(ctx, "Run already exported, skipping", "run_id", run.ID)
		return nil
	}

	return w.exportRun(ctx, run)
}

// ProcessPendingRuns exports runs still marked pending. Backup mechanism
// in case AMQP messages are lost.
func (w *ExportWorker) ProcessPendingRuns(ctx context.Context) error {
	pending, err := w.storage.GetPendingExportRuns(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending runs: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending runs", "count", len(pending))

	for _, run := range pending {
		if err := w.exportRun(ctx, run); err != nil {
			slog.ErrorContext(ctx, "Failed to export pending run",
				"run_id", run.ID, "error", err)
		}
	}
	return nil
}

// StartupCheck exports whatever accumulated while the worker was down.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.storage.GetPendingExportRuns(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending runs for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending runs found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending runs on startup, processing...",
		"count", len(pending))

	exported := 0
	failed := 0
	for _, run := range pending {
		if err := w.exportRun(ctx, run); err != nil {
			slog.ErrorContext(ctx, "Failed to export run during startup",
				"run_id", run.ID, "error", err)
			failed++
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Startup export completed",
		"total", len(pending),
		"exported", exported,
		"errors", failed)

	return nil
}

// RunPeriodicSweep processes pending runs on the given interval until
// ctx is done.
func (w *ExportWorker) RunPeriodicSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ProcessPendingRuns(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic sweep failed", "error", err)
			}
		}
	}
}

func (w *ExportWorker) exportRun(ctx context.Context, run storage.Run) error {
	anomalies, err := w.storage.GetAnomalies(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("get run anomalies: %w", err)
	}

	ref, err := w.exporter.ExportRun(ctx, export.RunExport{
		ReportID:     run.ReportID,
		CreatedAt:    run.CreatedAt,
		Total:        core.Money{Cents: run.TotalCents},
		Average:      core.Money{Cents: run.AverageCents},
		AnomalyCount: run.AnomalyCount,
		RecordCount:  run.RecordCount,
		Anomalies:    anomalies,
	})
	if err != nil {
		if markErr := w.storage.MarkRunExportError(ctx, run.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "run_id", run.ID, "error", markErr)
		}
		return fmt.Errorf("export run: %w", err)
	}

	if err := w.storage.MarkRunExported(ctx, run.ID); err != nil {
		// The export itself worked.
		slog.ErrorContext(ctx, "Failed to mark run as exported", "run_id", run.ID, "error", err)
	}

	slog.InfoContext(ctx, "Run exported",
		"run_id", run.ID,
		"report_id", run.ReportID,
		"ref", ref)

	return nil
}
