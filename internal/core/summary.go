package core

import "sort"

type (
	// BudgetStatus compares actual spend against a category's ceiling.
	BudgetStatus struct {
		Budget     Money
		Spent      Money
		Remaining  Money
		OverBudget bool
	}

	// CategoryAmount is an amount aggregated under one category name.
	CategoryAmount struct {
		Name   string
		Amount Money
	}

	// Summary is the aggregate view of one loaded dataset. It is recomputed
	// on demand from the current expenses and budgets and never persisted
	// as-is.
	Summary struct {
		Total        Money
		Average      Money
		ByCategory   []CategoryAmount
		AnomalyCount int
		BudgetStatus map[string]BudgetStatus
	}
)

// Summarize computes the Summary for the given expenses and budgets. It is
// a pure function of its inputs: calling it twice without mutating either
// argument yields identical output. Returns ErrEmptyDataset for zero
// records.
func Summarize(expenses []Expense, budgets BudgetTable) (Summary, error) {
	if len(expenses) == 0 {
		return Summary{}, ErrEmptyDataset
	}

	var total int64
	perCategory := make(map[string]int64)
	anomalies := 0
	for _, e := range expenses {
		total += e.Amount.Cents
		perCategory[e.Category] += e.Amount.Cents
		if e.Anomaly {
			anomalies++
		}
	}

	s := Summary{
		Total:        Money{Cents: total},
		Average:      Money{Cents: roundDiv(total, int64(len(expenses)))},
		AnomalyCount: anomalies,
		BudgetStatus: make(map[string]BudgetStatus, len(budgets)),
	}

	names := make([]string, 0, len(perCategory))
	for name := range perCategory {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.ByCategory = append(s.ByCategory, CategoryAmount{
			Name:   name,
			Amount: Money{Cents: perCategory[name]},
		})
	}

	for category, budget := range budgets {
		spent := Money{Cents: perCategory[category]} // zero when no records match
		s.BudgetStatus[category] = BudgetStatus{
			Budget:     budget,
			Spent:      spent,
			Remaining:  budget.Sub(spent),
			OverBudget: spent.Cents > budget.Cents,
		}
	}

	return s, nil
}

// TopCategory returns the highest-spend category, ties broken by name so
// the result is stable. Empty string when there are no categories.
func (s Summary) TopCategory() string {
	top := ""
	var max int64
	for _, ca := range s.ByCategory {
		if top == "" || ca.Amount.Cents > max {
			top = ca.Name
			max = ca.Amount.Cents
		}
	}
	return top
}

// roundDiv divides with half-up rounding away from zero.
func roundDiv(n, d int64) int64 {
	if d == 0 {
		return 0
	}
	if n >= 0 {
		return (n + d/2) / d
	}
	return (n - d/2) / d
}
