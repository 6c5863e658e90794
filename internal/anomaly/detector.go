// Package anomaly flags statistically unusual expense records.
//
// Detection is a global batch operation: every record's label depends on
// the whole dataset's distribution, so the detector refits from scratch
// whenever the data changes. There are no partial results and no
// cancellation mid-fit.
package anomaly

import (
	"context"

	"spendscope/internal/core"
)

// Detector labels each expense record as anomalous or not. The returned
// slice is parallel to the input. Implementations must be deterministic
// given their seed, and must return core.ErrEmptyDataset for zero records.
type Detector interface {
	FitAndLabel(ctx context.Context, expenses []core.Expense) ([]bool, error)
}

// features derives the 3-dimensional vector the model fits over:
// amount in dollars, day of week (Monday = 0) and month (1-12).
func features(e core.Expense) [3]float64 {
	return [3]float64{
		e.Amount.Dollars(),
		float64(e.Date.DayOfWeek()),
		float64(e.Date.Month()),
	}
}

// Label runs the detector and writes the result onto each record's
// Anomaly flag.
func Label(ctx context.Context, d Detector, expenses []core.Expense) error {
	labels, err := d.FitAndLabel(ctx, expenses)
	if err != nil {
		return err
	}
	for i := range expenses {
		expenses[i].Anomaly = labels[i]
	}
	return nil
}
