// Package storage persists analysis runs and budgets in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"spendscope/internal/core"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when no run matches the requested report ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one persisted analysis run: the stored aggregate plus export
// bookkeeping. The full record set lives in run_expenses.
type Run struct {
	ID           int64
	ReportID     string
	CreatedAt    time.Time
	TotalCents   int64
	AverageCents int64
	AnomalyCount int
	RecordCount  int
	ReportPath   string
	ExportStatus string
	ExportedAt   sql.NullTime
}

// Export statuses for a run.
const (
	ExportPending = "pending"
	ExportDone    = "exported"
	ExportError   = "error"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveRun persists a finished run and its full record set in one
// transaction. Returns the new run's database ID.
func (r *SQLiteRepository) SaveRun(ctx context.Context, reportID, reportPath string, summary core.Summary, expenses []core.Expense) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (report_id, total_cents, average_cents, anomaly_count, record_count, report_path, export_status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		reportID, summary.Total.Cents, summary.Average.Cents, summary.AnomalyCount, len(expenses), reportPath, ExportPending)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_expenses (run_id, date, category, amount_cents, description, anomaly)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare expense insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range expenses {
		anomaly := 0
		if e.Anomaly {
			anomaly = 1
		}
		if _, err := stmt.ExecContext(ctx, runID, e.Date.Format("2006-01-02"), e.Category, e.Amount.Cents, e.Description, anomaly); err != nil {
			return 0, fmt.Errorf("insert run expense: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}

	slog.InfoContext(ctx, "Run saved",
		"run_id", runID,
		"report_id", reportID,
		"records", len(expenses),
		"anomalies", summary.AnomalyCount)

	return runID, nil
}

const runColumns = `id, report_id, created_at, total_cents, average_cents, anomaly_count, record_count, report_path, export_status, exported_at`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.ReportID, &run.CreatedAt, &run.TotalCents, &run.AverageCents,
		&run.AnomalyCount, &run.RecordCount, &run.ReportPath, &run.ExportStatus, &run.ExportedAt)
	return run, err
}

// GetRunByReportID looks a run up by its public report ID.
func (r *SQLiteRepository) GetRunByReportID(ctx context.Context, reportID string) (Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE report_id = ?`, reportID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run by report id: %w", err)
	}
	return run, nil
}

// GetRunExpenses returns a run's full record set in insertion order.
func (r *SQLiteRepository) GetRunExpenses(ctx context.Context, runID int64) ([]core.Expense, error) {
	return r.queryExpenses(ctx, `
		SELECT date, category, amount_cents, description, anomaly
		FROM run_expenses WHERE run_id = ? ORDER BY id`, runID)
}

// GetAnomalies returns only the flagged records of a run.
func (r *SQLiteRepository) GetAnomalies(ctx context.Context, runID int64) ([]core.Expense, error) {
	return r.queryExpenses(ctx, `
		SELECT date, category, amount_cents, description, anomaly
		FROM run_expenses WHERE run_id = ? AND anomaly = 1 ORDER BY id`, runID)
}

func (r *SQLiteRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var (
			date    string
			e       core.Expense
			anomaly int
		)
		if err := rows.Scan(&date, &e.Category, &e.Amount.Cents, &e.Description, &anomaly); err != nil {
			return nil, fmt.Errorf("scan run expense: %w", err)
		}
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", date, err)
		}
		e.Date = core.Date{Time: t}
		e.Anomaly = anomaly != 0
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// GetPendingExportRuns returns runs not yet exported, oldest first.
func (r *SQLiteRepository) GetPendingExportRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE export_status = ? ORDER BY id LIMIT ?`, ExportPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkRunExported records a successful export.
func (r *SQLiteRepository) MarkRunExported(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE runs SET export_status = ?, exported_at = CURRENT_TIMESTAMP WHERE id = ?`, ExportDone, id); err != nil {
		return fmt.Errorf("mark run exported: %w", err)
	}
	slog.InfoContext(ctx, "Run marked as exported", "run_id", id)
	return nil
}

// MarkRunExportError records a failed export so the sweep can retry or an
// operator can investigate.
func (r *SQLiteRepository) MarkRunExportError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE runs SET export_status = ? WHERE id = ?`, ExportError, id); err != nil {
		return fmt.Errorf("mark run export error: %w", err)
	}
	slog.WarnContext(ctx, "Run marked with export error", "run_id", id)
	return nil
}

// Budgets returns the persisted budget table.
func (r *SQLiteRepository) Budgets(ctx context.Context) (core.BudgetTable, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT category, amount_cents FROM budgets`)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	budgets := make(core.BudgetTable)
	for rows.Next() {
		var (
			category string
			cents    int64
		)
		if err := rows.Scan(&category, &cents); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budgets[category] = core.Money{Cents: cents}
	}
	return budgets, rows.Err()
}

// UpsertBudget sets a category's budget ceiling.
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, category string, amount core.Money) error {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (category, amount_cents) VALUES (?, ?)
		ON CONFLICT(category) DO UPDATE SET amount_cents = excluded.amount_cents`,
		category, amount.Cents); err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}
	slog.InfoContext(ctx, "Budget updated", "category", category, "amount_cents", amount.Cents)
	return nil
}
