package core

import (
	"errors"
	"sort"
	"strings"
)

// BudgetTable maps a category name to its spending ceiling. It is
// session-scoped mutable state: defaults at initialization, updated only
// through explicit user action.
type BudgetTable map[string]Money

var ErrUnknownCategory = errors.New("unknown budget category")

// DefaultBudgets returns the seed budget ceilings.
func DefaultBudgets() BudgetTable {
	return BudgetTable{
		"Food":          {Cents: 500_00},
		"Travel":        {Cents: 1000_00},
		"Utilities":     {Cents: 300_00},
		"Entertainment": {Cents: 200_00},
	}
}

// Set updates the ceiling for an existing category. Unknown categories are
// rejected so a typo in a budget update cannot silently create a new one.
func (b BudgetTable) Set(category string, limit Money) error {
	key, ok := b.resolve(category)
	if !ok {
		return ErrUnknownCategory
	}
	if limit.Cents < 0 {
		return ErrInvalidAmount
	}
	b[key] = limit
	return nil
}

// Categories returns the budgeted category names in sorted order, for
// deterministic iteration in reports and query answers.
func (b BudgetTable) Categories() []string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy so one session's updates cannot leak
// into another's.
func (b BudgetTable) Clone() BudgetTable {
	out := make(BudgetTable, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

func (b BudgetTable) resolve(category string) (string, bool) {
	if _, ok := b[category]; ok {
		return category, true
	}
	for name := range b {
		if strings.EqualFold(name, category) {
			return name, true
		}
	}
	return "", false
}
