package query

import (
	"strings"
	"testing"
	"time"

	"spendscope/internal/core"
	"spendscope/internal/rules"
)

func sampleExpenses() []core.Expense {
	return []core.Expense{
		{Date: core.NewDate(2025, 1, 1), Category: "Food", Amount: core.Money{Cents: 450}, Description: "Coffee shop"},
		{Date: core.NewDate(2025, 1, 2), Category: "Travel", Amount: core.Money{Cents: 32000}, Description: "Flight ticket"},
		{Date: core.NewDate(2025, 1, 3), Category: "Utilities", Amount: core.Money{Cents: 7500}, Description: "Electric bill"},
		{Date: core.NewDate(2025, 2, 10), Category: "Food", Amount: core.Money{Cents: 1200}, Description: "Grocery run"},
	}
}

func testDispatcher() *Dispatcher {
	d := NewDispatcher(rules.DefaultTable().Categories())
	d.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return d
}

func TestAnswerBudgetQuery(t *testing.T) {
	got := testDispatcher().Answer("check my Budget status", sampleExpenses(), core.DefaultBudgets())

	if !strings.HasPrefix(got, "Current budgets:") {
		t.Fatalf("unexpected response: %q", got)
	}
	for _, line := range []string{"Food: $500.00", "Travel: $1000.00", "Utilities: $300.00", "Entertainment: $200.00"} {
		if !strings.Contains(got, line) {
			t.Errorf("response missing %q:\n%s", line, got)
		}
	}
}

func TestAnswerCategoryQuery(t *testing.T) {
	got := testDispatcher().Answer("show food expenses", sampleExpenses(), core.DefaultBudgets())

	if !strings.Contains(got, "Coffee shop") || !strings.Contains(got, "Grocery run") {
		t.Errorf("food records missing:\n%s", got)
	}
	if strings.Contains(got, "Flight ticket") || strings.Contains(got, "Electric bill") {
		t.Errorf("non-food records leaked into response:\n%s", got)
	}
}

func TestAnswerCategoryWithMonth(t *testing.T) {
	got := testDispatcher().Answer("show Food expenses for January 2025", sampleExpenses(), core.DefaultBudgets())

	if !strings.Contains(got, "Coffee shop") {
		t.Errorf("January food record missing:\n%s", got)
	}
	if strings.Contains(got, "Grocery run") {
		t.Errorf("February record not filtered out:\n%s", got)
	}
}

func TestAnswerMonthDefaultsToCurrentYear(t *testing.T) {
	d := testDispatcher()
	d.Now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	// Records are all from 2025, so a month query without a year must
	// come back empty against the 2024 default.
	got := d.Answer("food expenses in january", sampleExpenses(), core.DefaultBudgets())
	if got != "No Food expenses found for 2024-01" {
		t.Errorf("got %q", got)
	}
}

func TestAnswerNoMatches(t *testing.T) {
	got := testDispatcher().Answer("entertainment spending please", sampleExpenses(), core.DefaultBudgets())
	if got != "No Entertainment expenses found." {
		t.Errorf("got %q", got)
	}
}

func TestAnswerHelpFallback(t *testing.T) {
	got := testDispatcher().Answer("what is the weather", sampleExpenses(), core.DefaultBudgets())
	if got != HelpMessage {
		t.Errorf("got %q", got)
	}
}

func TestAnswerBudgetWinsOverCategory(t *testing.T) {
	got := testDispatcher().Answer("food budget", sampleExpenses(), core.DefaultBudgets())
	if !strings.HasPrefix(got, "Current budgets:") {
		t.Errorf("budget keyword must win dispatch, got %q", got)
	}
}
