package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"spendscope/internal/amqp"
	"spendscope/internal/core"
	"spendscope/internal/export/memory"
	"spendscope/internal/storage"
)

type fakeRunSource struct {
	runs       map[string]storage.Run
	anomalies  map[int64][]core.Expense
	exported   []int64
	exportErrs []int64
}

func newFakeRunSource() *fakeRunSource {
	return &fakeRunSource{
		runs:      make(map[string]storage.Run),
		anomalies: make(map[int64][]core.Expense),
	}
}

func (f *fakeRunSource) addRun(run storage.Run, anomalies []core.Expense) {
	f.runs[run.ReportID] = run
	f.anomalies[run.ID] = anomalies
}

func (f *fakeRunSource) GetRunByReportID(_ context.Context, reportID string) (storage.Run, error) {
	run, ok := f.runs[reportID]
	if !ok {
		return storage.Run{}, storage.ErrRunNotFound
	}
	return run, nil
}

func (f *fakeRunSource) GetAnomalies(_ context.Context, runID int64) ([]core.Expense, error) {
	return f.anomalies[runID], nil
}

func (f *fakeRunSource) GetPendingExportRuns(_ context.Context, limit int) ([]storage.Run, error) {
	var pending []storage.Run
	for _, run := range f.runs {
		if run.ExportStatus == storage.ExportPending && len(pending) < limit {
			pending = append(pending, run)
		}
	}
	return pending, nil
}

func (f *fakeRunSource) MarkRunExported(_ context.Context, id int64) error {
	f.exported = append(f.exported, id)
	for reportID, run := range f.runs {
		if run.ID == id {
			run.ExportStatus = storage.ExportDone
			f.runs[reportID] = run
		}
	}
	return nil
}

func (f *fakeRunSource) MarkRunExportError(_ context.Context, id int64) error {
	f.exportErrs = append(f.exportErrs, id)
	return nil
}

func pendingRun(id int64, reportID string) storage.Run {
	return storage.Run{
		ID:           id,
		ReportID:     reportID,
		CreatedAt:    time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC),
		TotalCents:   41750,
		AverageCents: 10438,
		AnomalyCount: 1,
		RecordCount:  4,
		ExportStatus: storage.ExportPending,
	}
}

func TestHandleRunCompleted(t *testing.T) {
	source := newFakeRunSource()
	source.addRun(pendingRun(1, "report-1"), []core.Expense{
		{Date: core.NewDate(2025, 1, 2), Category: "Travel", Amount: core.Money{Cents: 32000}, Description: "Flight ticket", Anomaly: true},
	})
	store := memory.New()
	w := NewExportWorker(source, store, 10)

	msg := &amqp.RunCompletedMessage{RunID: 1, ReportID: "report-1"}
	if err := w.HandleRunCompleted(context.Background(), msg); err != nil {
		t.Fatalf("HandleRunCompleted: %v", err)
	}

	runs := store.Runs()
	if len(runs) != 1 {
		t.Fatalf("exported %d runs, want 1", len(runs))
	}
	if runs[0].ReportID != "report-1" || len(runs[0].Anomalies) != 1 {
		t.Errorf("export payload wrong: %+v", runs[0])
	}
	if len(source.exported) != 1 || source.exported[0] != 1 {
		t.Errorf("run not marked exported: %v", source.exported)
	}
}

func TestHandleRunCompletedSkipsAlreadyExported(t *testing.T) {
	source := newFakeRunSource()
	run := pendingRun(1, "report-1")
	run.ExportStatus = storage.ExportDone
	source.addRun(run, nil)
	store := memory.New()
	w := NewExportWorker(source, store, 10)

	if err := w.HandleRunCompleted(context.Background(), &amqp.RunCompletedMessage{ReportID: "report-1"}); err != nil {
		t.Fatalf("HandleRunCompleted: %v", err)
	}
	if len(store.Runs()) != 0 {
		t.Error("already exported run must not be exported again")
	}
}

func TestHandleRunCompletedUnknownRun(t *testing.T) {
	w := NewExportWorker(newFakeRunSource(), memory.New(), 10)

	err := w.HandleRunCompleted(context.Background(), &amqp.RunCompletedMessage{ReportID: "ghost"})
	if !errors.Is(err, storage.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestProcessPendingRuns(t *testing.T) {
	source := newFakeRunSource()
	source.addRun(pendingRun(1, "report-1"), nil)
	source.addRun(pendingRun(2, "report-2"), nil)
	store := memory.New()
	w := NewExportWorker(source, store, 10)

	if err := w.ProcessPendingRuns(context.Background()); err != nil {
		t.Fatalf("ProcessPendingRuns: %v", err)
	}
	if len(store.Runs()) != 2 {
		t.Errorf("exported %d runs, want 2", len(store.Runs()))
	}

	// Second sweep finds nothing left to do.
	if err := w.ProcessPendingRuns(context.Background()); err != nil {
		t.Fatalf("ProcessPendingRuns: %v", err)
	}
	if len(store.Runs()) != 2 {
		t.Error("sweep re-exported already exported runs")
	}
}

func TestExportFailureMarksRun(t *testing.T) {
	source := newFakeRunSource()
	source.addRun(pendingRun(1, "report-1"), nil)
	store := memory.New()
	store.Err = errors.New("quota exceeded")
	w := NewExportWorker(source, store, 10)

	err := w.HandleRunCompleted(context.Background(), &amqp.RunCompletedMessage{ReportID: "report-1"})
	if err == nil {
		t.Fatal("expected export error")
	}
	if len(source.exportErrs) != 1 || source.exportErrs[0] != 1 {
		t.Errorf("run not marked with export error: %v", source.exportErrs)
	}
	if len(source.exported) != 0 {
		t.Error("failed run must not be marked exported")
	}
}
