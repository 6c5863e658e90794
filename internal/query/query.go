// Package query answers free-text questions about a loaded dataset.
//
// Dispatch is keyword-driven: a "budget" mention wins, then the first
// known category name found in the query, then a fixed help message. All
// matching is case-insensitive substring search.
package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"spendscope/internal/core"
)

// HelpMessage is returned when no dispatch rule matches the query.
const HelpMessage = "Query not recognized. Try 'Show Food expenses', 'Check budget status', or 'Show Travel expenses for January 2025'."

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// Dispatcher resolves queries against one session's dataset. Categories
// must be in rule order since it is the tie-break when a query mentions
// several. Now is overridable for tests and defaults to time.Now.
type Dispatcher struct {
	Categories []string
	Now        func() time.Time
}

func NewDispatcher(categories []string) *Dispatcher {
	return &Dispatcher{Categories: categories, Now: time.Now}
}

// Answer resolves one query against the given expenses and budgets.
func (d *Dispatcher) Answer(queryText string, expenses []core.Expense, budgets core.BudgetTable) string {
	q := strings.ToLower(queryText)

	if strings.Contains(q, "budget") {
		return formatBudgets(budgets)
	}

	for _, category := range d.Categories {
		if strings.Contains(q, strings.ToLower(category)) {
			return d.categoryExpenses(q, category, expenses)
		}
	}

	return HelpMessage
}

func formatBudgets(budgets core.BudgetTable) string {
	var b strings.Builder
	b.WriteString("Current budgets:\n")
	for _, name := range budgets.Categories() {
		fmt.Fprintf(&b, "%s: %s\n", name, budgets[name].Format())
	}
	return strings.TrimRight(b.String(), "\n")
}

func (d *Dispatcher) categoryExpenses(q, category string, expenses []core.Expense) string {
	month, year, hasMonth := d.monthFilter(q)

	var matched []core.Expense
	for _, e := range expenses {
		if !e.MatchesCategory(category) {
			continue
		}
		if hasMonth && (e.Date.Month() != month || e.Date.Year() != year) {
			continue
		}
		matched = append(matched, e)
	}

	if len(matched) == 0 {
		if hasMonth {
			return fmt.Sprintf("No %s expenses found for %d-%02d", category, year, month)
		}
		return fmt.Sprintf("No %s expenses found.", category)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s Expenses:\n", category)
	for _, e := range matched {
		fmt.Fprintf(&b, "%s  %s  %s\n", e.Date.Format("2006-01-02"), e.Amount.Format(), e.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// monthFilter extracts an optional month-name filter from the query. The
// year is any 4-digit number mentioned alongside, else the current year.
func (d *Dispatcher) monthFilter(q string) (month, year int, ok bool) {
	for i, name := range monthNames {
		if strings.Contains(q, name) {
			month = i + 1
			ok = true
			break
		}
	}
	if !ok {
		return 0, 0, false
	}

	year = d.now().Year()
	for _, token := range strings.FieldsFunc(q, func(r rune) bool {
		return r < '0' || r > '9'
	}) {
		if len(token) != 4 {
			continue
		}
		if n, err := strconv.Atoi(token); err == nil {
			year = n
			break
		}
	}
	return month, year, true
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
