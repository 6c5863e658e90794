// Package google exports finished runs to a Google Sheets spreadsheet
// using Service Account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"spendscope/internal/export"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc            *gsheet.Service
	spreadsheetID  string
	runsSheet      string
	anomaliesSheet string
}

var _ export.Exporter = (*Client)(nil)

// NewFromEnv creates a Sheets exporter from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Optional sheet names: GOOGLE_RUNS_SHEET_NAME (default "Runs"),
// GOOGLE_ANOMALIES_SHEET_NAME (default "Anomalies").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	runsSheet := strings.TrimSpace(os.Getenv("GOOGLE_RUNS_SHEET_NAME"))
	if runsSheet == "" {
		runsSheet = "Runs"
	}
	anomaliesSheet := strings.TrimSpace(os.Getenv("GOOGLE_ANOMALIES_SHEET_NAME"))
	if anomaliesSheet == "" {
		anomaliesSheet = "Anomalies"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:            svc,
		spreadsheetID:  spreadsheetID,
		runsSheet:      runsSheet,
		anomaliesSheet: anomaliesSheet,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportRun appends one summary row to the runs sheet and one row per
// flagged record to the anomalies sheet.
func (c *Client) ExportRun(ctx context.Context, run export.RunExport) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	runRange := fmt.Sprintf("%s!A:F", c.runsSheet)
	vr := &gsheet.ValueRange{Values: [][]any{runRow(run)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, runRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append run to sheet %s: %w", c.runsSheet, err)
	}

	if len(run.Anomalies) > 0 {
		anomalyRange := fmt.Sprintf("%s!A:E", c.anomaliesSheet)
		avr := &gsheet.ValueRange{Values: anomalyRows(run)}
		if _, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, anomalyRange, avr).
			ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
			return "", fmt.Errorf("append anomalies to sheet %s: %w", c.anomaliesSheet, err)
		}
	}

	ref := runRange
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "Run exported to Google Sheets",
		"report_id", run.ReportID,
		"range", ref,
		"anomalies", len(run.Anomalies))
	return ref, nil
}

func runRow(run export.RunExport) []any {
	return []any{
		run.ReportID,
		run.CreatedAt.Format("2006-01-02 15:04:05"),
		run.Total.Dollars(),
		run.Average.Dollars(),
		run.AnomalyCount,
		run.RecordCount,
	}
}

func anomalyRows(run export.RunExport) [][]any {
	rows := make([][]any, len(run.Anomalies))
	for i, e := range run.Anomalies {
		rows[i] = []any{
			run.ReportID,
			e.Date.Format("2006-01-02"),
			e.Category,
			e.Amount.Dollars(),
			e.Description,
		}
	}
	return rows
}
