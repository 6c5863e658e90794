// Package services orchestrates the analysis pipeline across the
// detector, storage and AMQP.
package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"spendscope/internal/amqp"
	"spendscope/internal/anomaly"
	"spendscope/internal/core"
	"spendscope/internal/loader"
	"spendscope/internal/query"
	"spendscope/internal/report"
	"spendscope/internal/rules"
)

// RunStore is the slice of the repository the service needs. Nil means
// run persistence is disabled.
type RunStore interface {
	SaveRun(ctx context.Context, reportID, reportPath string, summary core.Summary, expenses []core.Expense) (int64, error)
	Budgets(ctx context.Context) (core.BudgetTable, error)
	UpsertBudget(ctx context.Context, category string, amount core.Money) error
}

// EventPublisher announces finished runs. Nil means events are disabled.
type EventPublisher interface {
	PublishRunCompleted(ctx context.Context, msg *amqp.RunCompletedMessage) error
}

// AnalysisResult is what one Analyze call produced.
type AnalysisResult struct {
	RunID      int64
	ReportID   string
	ReportPath string
	Summary    core.Summary
	Anomalies  []core.Expense
	Report     string
}

// AnalyzerService owns one session: its loaded records, its budget
// table and the Loader, Categorizer, Detector, Summarizer, Renderer
// pipeline over them. Independent sessions get independent services.
type AnalyzerService struct {
	detector   anomaly.Detector
	rules      rules.Table
	renderer   *report.Renderer
	dispatcher *query.Dispatcher
	store      RunStore
	events     EventPublisher

	mu       sync.Mutex
	budgets  core.BudgetTable
	expenses []core.Expense
	loaded   bool
}

func NewAnalyzerService(detector anomaly.Detector, table rules.Table, renderer *report.Renderer, store RunStore, events EventPublisher) *AnalyzerService {
	return &AnalyzerService{
		detector:   detector,
		rules:      table,
		renderer:   renderer,
		dispatcher: query.NewDispatcher(table.Categories()),
		store:      store,
		events:     events,
		budgets:    core.DefaultBudgets(),
	}
}

// LoadBudgets replaces the session's budget table with the persisted
// one. Called at startup when a repository is configured.
func (s *AnalyzerService) LoadBudgets(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	budgets, err := s.store.Budgets(ctx)
	if err != nil {
		return fmt.Errorf("load budgets: %w", err)
	}
	if len(budgets) == 0 {
		return nil
	}
	s.mu.Lock()
	s.budgets = budgets
	s.mu.Unlock()
	return nil
}

// LoadFile loads a delimited expense file into the session, replacing
// whatever was loaded before.
func (s *AnalyzerService) LoadFile(ctx context.Context, path string) (int, error) {
	expenses, err := loader.Load(path)
	if err != nil {
		return 0, err
	}
	return s.setExpenses(ctx, expenses), nil
}

// Load reads expense records from r into the session.
func (s *AnalyzerService) Load(ctx context.Context, r io.Reader) (int, error) {
	expenses, err := loader.Read(r)
	if err != nil {
		return 0, err
	}
	return s.setExpenses(ctx, expenses), nil
}

func (s *AnalyzerService) setExpenses(ctx context.Context, expenses []core.Expense) int {
	s.mu.Lock()
	s.expenses = expenses
	s.loaded = true
	s.mu.Unlock()
	slog.InfoContext(ctx, "Dataset loaded", "records", len(expenses))
	return len(expenses)
}

// Analyze runs the full pipeline over the loaded dataset: categorize,
// fit and label anomalies, summarize, render and persist the report,
// then record the run and announce it. Storage and publish failures
// after a successful pipeline are logged, not returned: the analysis
// result is already good.
func (s *AnalyzerService) Analyze(ctx context.Context) (AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return AnalysisResult{}, core.ErrNotLoaded
	}
	if len(s.expenses) == 0 {
		return AnalysisResult{}, core.ErrEmptyDataset
	}

	s.rules.Apply(s.expenses)

	if err := anomaly.Label(ctx, s.detector, s.expenses); err != nil {
		return AnalysisResult{}, fmt.Errorf("fit anomaly model: %w", err)
	}

	summary, err := core.Summarize(s.expenses, s.budgets)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("summarize: %w", err)
	}

	var anomalies []core.Expense
	for _, e := range s.expenses {
		if e.Anomaly {
			anomalies = append(anomalies, e)
		}
	}

	reportID := uuid.NewString()
	content := s.renderer.Render(reportID, summary, anomalies)
	reportPath, err := s.renderer.WriteReport(reportID, summary, anomalies)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("write report: %w", err)
	}

	result := AnalysisResult{
		ReportID:   reportID,
		ReportPath: reportPath,
		Summary:    summary,
		Anomalies:  anomalies,
		Report:     content,
	}

	if s.store != nil {
		runID, err := s.store.SaveRun(ctx, reportID, reportPath, summary, s.expenses)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to persist run", "report_id", reportID, "error", err)
		} else {
			result.RunID = runID
			s.publishRunCompleted(ctx, result)
		}
	}

	slog.InfoContext(ctx, "Analysis completed",
		"report_id", reportID,
		"records", len(s.expenses),
		"anomalies", summary.AnomalyCount,
		"total_cents", summary.Total.Cents)

	return result, nil
}

func (s *AnalyzerService) publishRunCompleted(ctx context.Context, result AnalysisResult) {
	if s.events == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping run completed message")
		return
	}
	msg := amqp.NewRunCompletedMessage(result.RunID, result.ReportID, result.Summary.AnomalyCount, result.Summary.Total.Cents)
	if err := s.events.PublishRunCompleted(ctx, msg); err != nil {
		// The run is saved; the worker's periodic sweep will pick it up.
		slog.ErrorContext(ctx, "Failed to publish run completed message",
			"run_id", result.RunID, "error", err)
	}
}

// Summary recomputes the aggregate view from the current records and
// budgets. Call after UpdateBudget to see refreshed budget status.
func (s *AnalyzerService) Summary(ctx context.Context) (core.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return core.Summary{}, core.ErrNotLoaded
	}
	return core.Summarize(s.expenses, s.budgets)
}

// Answer resolves a free-text query against the session's dataset.
func (s *AnalyzerService) Answer(ctx context.Context, queryText string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return "", core.ErrNotLoaded
	}
	return s.dispatcher.Answer(queryText, s.expenses, s.budgets), nil
}

// Budgets returns a copy of the session's budget table.
func (s *AnalyzerService) Budgets() core.BudgetTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budgets.Clone()
}

// UpdateBudget sets a category's ceiling, persisting it when a
// repository is configured.
func (s *AnalyzerService) UpdateBudget(ctx context.Context, category string, amount core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.budgets.Set(category, amount); err != nil {
		return err
	}
	canonical := category
	for name := range s.budgets {
		if strings.EqualFold(name, category) {
			canonical = name
			break
		}
	}
	if s.store != nil {
		if err := s.store.UpsertBudget(ctx, canonical, amount); err != nil {
			return fmt.Errorf("persist budget: %w", err)
		}
	}
	return nil
}
