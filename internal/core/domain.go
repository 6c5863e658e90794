package core

import (
	"errors"
	"strings"
	"time"
)

// CategoryOther is the sentinel category assigned when no keyword rule
// matches a description.
const CategoryOther = "Other"

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Expense is one transaction record flowing through the analysis
	// pipeline. Category and Anomaly are mutated by later pipeline stages;
	// everything else is fixed at load time.
	Expense struct {
		Date        Date
		Category    string
		Amount      Money
		Description string
		Anomaly     bool
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidAmount = errors.New("invalid amount")
)

// NewDate creates a Date from year, month, day at UTC midnight.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// DayOfWeek returns the weekday with Monday = 0 through Sunday = 6,
// the encoding the anomaly detector's feature vector expects.
func (d Date) DayOfWeek() int {
	return (int(d.Time.Weekday()) + 6) % 7
}

// Month returns the calendar month, 1-12.
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the calendar year.
func (d Date) Year() int {
	return d.Time.Year()
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(e.Description) > 500 {
		return errors.New("description too long (max 500 characters)")
	}
	return nil
}

// MatchesCategory reports whether the expense belongs to the given
// category, compared case-insensitively.
func (e Expense) MatchesCategory(category string) bool {
	return strings.EqualFold(e.Category, category)
}
