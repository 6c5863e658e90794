package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"spendscope/internal/core"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "spendscope.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testRun(t *testing.T, repo *SQLiteRepository, reportID string) int64 {
	t.Helper()
	expenses := []core.Expense{
		{Date: core.NewDate(2025, 1, 1), Category: "Food", Amount: core.Money{Cents: 450}, Description: "Coffee shop"},
		{Date: core.NewDate(2025, 1, 2), Category: "Travel", Amount: core.Money{Cents: 32000}, Description: "Flight ticket", Anomaly: true},
	}
	summary, err := core.Summarize(expenses, core.DefaultBudgets())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	runID, err := repo.SaveRun(context.Background(), reportID, "/tmp/report.md", summary, expenses)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	return runID
}

func TestSaveAndGetRun(t *testing.T) {
	repo := testRepo(t)
	runID := testRun(t, repo, "report-1")

	run, err := repo.GetRunByReportID(context.Background(), "report-1")
	if err != nil {
		t.Fatalf("GetRunByReportID: %v", err)
	}
	if run.ID != runID {
		t.Errorf("run ID = %d, want %d", run.ID, runID)
	}
	if run.TotalCents != 32450 {
		t.Errorf("total = %d, want 32450", run.TotalCents)
	}
	if run.AnomalyCount != 1 || run.RecordCount != 2 {
		t.Errorf("counts = %d/%d, want 1/2", run.AnomalyCount, run.RecordCount)
	}
	if run.ExportStatus != ExportPending {
		t.Errorf("export status = %q, want pending", run.ExportStatus)
	}
}

func TestGetRunByReportIDNotFound(t *testing.T) {
	repo := testRepo(t)
	_, err := repo.GetRunByReportID(context.Background(), "nope")
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestGetRunExpensesRoundTrip(t *testing.T) {
	repo := testRepo(t)
	runID := testRun(t, repo, "report-1")

	expenses, err := repo.GetRunExpenses(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetRunExpenses: %v", err)
	}
	if len(expenses) != 2 {
		t.Fatalf("got %d expenses, want 2", len(expenses))
	}
	first := expenses[0]
	if first.Date != core.NewDate(2025, 1, 1) || first.Amount.Cents != 450 || first.Description != "Coffee shop" {
		t.Errorf("first record mangled: %+v", first)
	}
	if first.Anomaly || !expenses[1].Anomaly {
		t.Error("anomaly flags not preserved")
	}
}

func TestGetAnomalies(t *testing.T) {
	repo := testRepo(t)
	runID := testRun(t, repo, "report-1")

	anomalies, err := repo.GetAnomalies(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetAnomalies: %v", err)
	}
	if len(anomalies) != 1 || anomalies[0].Description != "Flight ticket" {
		t.Errorf("anomalies = %+v, want just the flight", anomalies)
	}
}

func TestExportLifecycle(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	first := testRun(t, repo, "report-1")
	second := testRun(t, repo, "report-2")

	pending, err := repo.GetPendingExportRuns(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingExportRuns: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != first {
		t.Fatalf("pending = %+v, want both runs oldest first", pending)
	}

	if err := repo.MarkRunExported(ctx, first); err != nil {
		t.Fatalf("MarkRunExported: %v", err)
	}
	if err := repo.MarkRunExportError(ctx, second); err != nil {
		t.Fatalf("MarkRunExportError: %v", err)
	}

	pending, err = repo.GetPendingExportRuns(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingExportRuns: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after marking = %+v, want none", pending)
	}

	run, err := repo.GetRunByReportID(ctx, "report-1")
	if err != nil {
		t.Fatalf("GetRunByReportID: %v", err)
	}
	if run.ExportStatus != ExportDone || !run.ExportedAt.Valid {
		t.Errorf("exported run status = %q valid=%v", run.ExportStatus, run.ExportedAt.Valid)
	}
}

func TestBudgetsSeededAndUpsert(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	budgets, err := repo.Budgets(ctx)
	if err != nil {
		t.Fatalf("Budgets: %v", err)
	}
	if budgets["Food"].Cents != 50000 || budgets["Travel"].Cents != 100000 {
		t.Errorf("seed budgets wrong: %+v", budgets)
	}

	if err := repo.UpsertBudget(ctx, "Food", core.Money{Cents: 75000}); err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}
	if err := repo.UpsertBudget(ctx, "Pets", core.Money{Cents: 10000}); err != nil {
		t.Fatalf("UpsertBudget new category: %v", err)
	}

	budgets, err = repo.Budgets(ctx)
	if err != nil {
		t.Fatalf("Budgets: %v", err)
	}
	if budgets["Food"].Cents != 75000 {
		t.Errorf("Food budget = %d, want 75000", budgets["Food"].Cents)
	}
	if budgets["Pets"].Cents != 10000 {
		t.Errorf("Pets budget = %d, want 10000", budgets["Pets"].Cents)
	}
}
