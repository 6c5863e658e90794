// Package export defines the outbound port for shipping finished runs to
// external destinations.
package export

import (
	"context"
	"time"

	"spendscope/internal/core"
)

// RunExport is the destination-agnostic view of one finished run: the
// stored aggregate plus its flagged records.
type RunExport struct {
	ReportID     string
	CreatedAt    time.Time
	Total        core.Money
	Average      core.Money
	AnomalyCount int
	RecordCount  int
	Anomalies    []core.Expense
}

// Exporter ships a run to an external destination. The returned ref
// identifies where it landed (a sheet range, an index) and is only used
// for logging.
type Exporter interface {
	ExportRun(ctx context.Context, run RunExport) (ref string, err error)
}
