// Package loader parses delimited expense files into validated records.
package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"spendscope/internal/core"
)

// Required input columns. Header matching is case-insensitive and extra
// columns are ignored.
var requiredColumns = []string{"date", "category", "amount", "description"}

// Accepted date layouts, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"2006/01/02",
}

// Load reads a CSV file from disk and returns the parsed expense records in
// file order.
func Load(path string) ([]core.Expense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open expense file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses CSV expense data from r. The first row must be a header
// containing at least date, category, amount and description. A missing
// column yields a *core.SchemaError; an unparseable date or amount cell
// yields a *core.ParseError carrying the line number.
func Read(r io.Reader) ([]core.Expense, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &core.SchemaError{Missing: requiredColumns}
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var expenses []core.Expense
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line++

		e, err := parseRow(record, cols, line)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}

	return expenses, nil
}

// mapColumns resolves the required column indexes from the header row.
func mapColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(requiredColumns))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, exists := cols[key]; !exists {
			cols[key] = i
		}
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &core.SchemaError{Missing: missing}
	}
	return cols, nil
}

func parseRow(record []string, cols map[string]int, line int) (core.Expense, error) {
	cell := func(name string) string {
		idx := cols[name]
		if idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	dateStr := cell("date")
	date, err := parseDate(dateStr)
	if err != nil {
		return core.Expense{}, &core.ParseError{Line: line, Field: "date", Value: dateStr, Err: err}
	}

	amountStr := cell("amount")
	amount, err := core.ParseAmount(amountStr)
	if err != nil {
		return core.Expense{}, &core.ParseError{Line: line, Field: "amount", Value: amountStr, Err: err}
	}

	return core.Expense{
		Date:        date,
		Category:    cell("category"),
		Amount:      amount,
		Description: cell("description"),
	}, nil
}

func parseDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, core.ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.Date{Time: t}, nil
		}
	}
	return core.Date{}, core.ErrInvalidDate
}
