package http

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"os"
	"strings"

	"spendscope/internal/core"
	applog "spendscope/internal/log"
	"spendscope/internal/storage"
)

// maxUploadBytes caps expense file uploads at 10 MiB.
const maxUploadBytes = 10 << 20

type expensePayload struct {
	Date        string `json:"date"`
	Category    string `json:"category"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
}

func toExpensePayloads(expenses []core.Expense) []expensePayload {
	out := make([]expensePayload, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, expensePayload{
			Date:        e.Date.Format("2006-01-02"),
			Category:    e.Category,
			AmountCents: e.Amount.Cents,
			Description: e.Description,
		})
	}
	return out
}

type analyzeResponse struct {
	RunID        int64            `json:"run_id,omitempty"`
	ReportID     string           `json:"report_id"`
	ReportPath   string           `json:"report_path"`
	Records      int              `json:"records"`
	TotalCents   int64            `json:"total_cents"`
	AverageCents int64            `json:"average_cents"`
	AnomalyCount int              `json:"anomaly_count"`
	TopCategory  string           `json:"top_category"`
	Anomalies    []expensePayload `json:"anomalies"`
}

// handleAnalyze loads an expense file from the request body and runs
// the full pipeline over it. Accepts either a multipart upload under
// the "file" field or a raw delimited body.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	logger := applog.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	src := r.Body
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing 'file' upload field")
			return
		}
		defer file.Close()
		src = file
	}

	records, err := s.service.Load(r.Context(), src)
	if err != nil {
		logger.WarnContext(r.Context(), "Dataset load rejected",
			applog.FieldOperation, applog.OpLoad, applog.FieldError, err.Error())
		var schemaErr *core.SchemaError
		var parseErr *core.ParseError
		if errors.As(err, &schemaErr) || errors.As(err, &parseErr) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.service.Analyze(r.Context())
	if err != nil {
		if errors.Is(err, core.ErrEmptyDataset) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		logger.ErrorContext(r.Context(), "Analysis failed",
			applog.FieldOperation, applog.OpAnalyze, applog.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	// The rendered report never changes after the run, so seed the
	// cache for the report endpoint.
	s.reportCache.Set(result.ReportID, result.Report)

	s.structured.LogRunAnalyzed(r.Context(), result.RunID, result.ReportID, records, result.Summary.AnomalyCount)

	writeJSON(w, http.StatusOK, analyzeResponse{
		RunID:        result.RunID,
		ReportID:     result.ReportID,
		ReportPath:   result.ReportPath,
		Records:      records,
		TotalCents:   result.Summary.Total.Cents,
		AverageCents: result.Summary.Average.Cents,
		AnomalyCount: result.Summary.AnomalyCount,
		TopCategory:  result.Summary.TopCategory(),
		Anomalies:    toExpensePayloads(result.Anomalies),
	})
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Answer string `json:"answer"`
}

// handleQuery resolves a free-text question against the loaded dataset.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	queryText := sanitizeInput(req.Query)
	if queryText == "" {
		writeError(w, http.StatusBadRequest, "query cannot be empty")
		return
	}

	answer, err := s.service.Answer(r.Context(), queryText)
	if err != nil {
		if errors.Is(err, core.ErrNotLoaded) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{Answer: answer})
}

type budgetsResponse struct {
	Budgets map[string]int64 `json:"budgets"`
}

type budgetUpdateRequest struct {
	Category    string `json:"category"`
	AmountCents int64  `json:"amount_cents"`
}

// handleBudgets serves the session budget table and accepts updates to
// a single category's ceiling.
func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, budgetsToResponse(s.service.Budgets()))

	case http.MethodPut:
		var req budgetUpdateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		category := sanitizeInput(req.Category)
		if category == "" {
			writeError(w, http.StatusBadRequest, "category cannot be empty")
			return
		}

		err := s.service.UpdateBudget(r.Context(), category, core.Money{Cents: req.AmountCents})
		if err != nil {
			switch {
			case errors.Is(err, core.ErrUnknownCategory):
				writeError(w, http.StatusNotFound, err.Error())
			case errors.Is(err, core.ErrInvalidAmount):
				writeError(w, http.StatusUnprocessableEntity, "budget amount cannot be negative")
			default:
				applog.FromContext(r.Context()).ErrorContext(r.Context(), "Budget update failed",
					applog.FieldCategory, category, applog.FieldError, err.Error())
				writeError(w, http.StatusInternalServerError, "budget update failed")
			}
			return
		}
		writeJSON(w, http.StatusOK, budgetsToResponse(s.service.Budgets()))

	default:
		w.Header().Set("Allow", "GET, PUT")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func budgetsToResponse(budgets core.BudgetTable) budgetsResponse {
	out := budgetsResponse{Budgets: make(map[string]int64, len(budgets))}
	for name, amount := range budgets {
		out.Budgets[name] = amount.Cents
	}
	return out
}

// handleRunReport serves the rendered markdown report for a past run,
// from cache when hot and from the repository's report path otherwise.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	reportID, ok := reportIDFromPath(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if content, found := s.reportCache.Get(reportID); found {
		writeMarkdown(w, content)
		return
	}

	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	run, err := s.runs.GetRunByReportID(r.Context(), reportID)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Run lookup failed",
			applog.FieldReportID, reportID, applog.FieldError, err.Error())
		writeError(w, http.StatusInternalServerError, "run lookup failed")
		return
	}

	content, err := os.ReadFile(run.ReportPath)
	if err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Report file missing",
			applog.FieldReportID, reportID, "path", run.ReportPath, applog.FieldError, err.Error())
		writeError(w, http.StatusNotFound, "report file not found")
		return
	}

	s.reportCache.Set(reportID, string(content))
	writeMarkdown(w, string(content))
}

// reportIDFromPath parses "/runs/{report_id}/report".
func reportIDFromPath(path string) (string, bool) {
	rest := strings.TrimPrefix(path, "/runs/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "report" {
		return "", false
	}
	return parts[0], true
}
