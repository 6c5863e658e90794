package core

import "testing"

func TestDateDerivedFields(t *testing.T) {
	cases := []struct {
		name      string
		date      Date
		dayOfWeek int
		month     int
	}{
		// 2025-01-01 was a Wednesday.
		{"wednesday", NewDate(2025, 1, 1), 2, 1},
		// 2025-01-06 was a Monday.
		{"monday", NewDate(2025, 1, 6), 0, 1},
		// 2025-06-01 was a Sunday.
		{"sunday", NewDate(2025, 6, 1), 6, 6},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.date.DayOfWeek(); got != tc.dayOfWeek {
				t.Errorf("DayOfWeek() = %d, want %d", got, tc.dayOfWeek)
			}
			if got := tc.date.Month(); got != tc.month {
				t.Errorf("Month() = %d, want %d", got, tc.month)
			}
		})
	}
}

func TestExpenseValidate(t *testing.T) {
	ok := Expense{Date: NewDate(2025, 1, 1), Amount: Money{Cents: 450}, Description: "Coffee shop"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid expense rejected: %v", err)
	}

	noDate := Expense{Amount: Money{Cents: 450}, Description: "Coffee shop"}
	if err := noDate.Validate(); err == nil {
		t.Fatal("zero date should be rejected")
	}
}

func TestBudgetTableSet(t *testing.T) {
	b := DefaultBudgets()

	if err := b.Set("Food", Money{Cents: 75000}); err != nil {
		t.Fatalf("Set(Food) error: %v", err)
	}
	if b["Food"].Cents != 75000 {
		t.Errorf("Food budget = %d, want 75000", b["Food"].Cents)
	}

	// Case-insensitive update should hit the existing key.
	if err := b.Set("travel", Money{Cents: 120000}); err != nil {
		t.Fatalf("Set(travel) error: %v", err)
	}
	if b["Travel"].Cents != 120000 {
		t.Errorf("Travel budget = %d, want 120000", b["Travel"].Cents)
	}

	if err := b.Set("Yachts", Money{Cents: 100}); err == nil {
		t.Error("Set with unknown category should fail")
	}
	if err := b.Set("Food", Money{Cents: -1}); err == nil {
		t.Error("negative budget should be rejected")
	}
}

func TestBudgetTableCloneIsIndependent(t *testing.T) {
	a := DefaultBudgets()
	b := a.Clone()
	if err := b.Set("Food", Money{Cents: 1}); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if a["Food"].Cents == 1 {
		t.Error("mutating clone leaked into original")
	}
}
