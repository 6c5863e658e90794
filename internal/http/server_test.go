package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spendscope/internal/anomaly"
	"spendscope/internal/report"
	"spendscope/internal/rules"
	"spendscope/internal/services"
	"spendscope/internal/storage"
)

const sampleCSV = `date,category,amount,description
2025-01-01,Uncategorized,4.50,Coffee shop
2025-01-02,Uncategorized,320.00,Flight ticket
2025-01-03,Uncategorized,75.00,Electric bill
2025-01-04,Uncategorized,18.00,Movie ticket
`

func newTestServer(t *testing.T, runs RunReader) (*Server, *httptest.Server) {
	t.Helper()

	detector := anomaly.NewIsolationForest(anomaly.DefaultContamination, anomaly.DefaultSeed)
	renderer := report.New(t.TempDir())
	svc := services.NewAnalyzerService(detector, rules.DefaultTable(), renderer, nil, nil)

	s := NewServer(":0", svc, runs, nil)
	ts := httptest.NewServer(s.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = s.Shutdown(context.Background())
	})
	return s, ts
}

func postCSV(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/analyze", "text/csv", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /analyze: %v", err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	_, ts := newTestServer(t, nil)

	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
		if string(body) != want {
			t.Errorf("GET %s body = %q, want %q", path, body, want)
		}
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp := postCSV(t, ts, sampleCSV)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /analyze status = %d, want 200", resp.StatusCode)
	}
	result := decodeJSON[analyzeResponse](t, resp)

	if result.Records != 4 {
		t.Errorf("records = %d, want 4", result.Records)
	}
	if result.TotalCents != 41750 {
		t.Errorf("total_cents = %d, want 41750", result.TotalCents)
	}
	if result.ReportID == "" {
		t.Error("report_id is empty")
	}
	if result.TopCategory != "Travel" {
		t.Errorf("top_category = %q, want Travel", result.TopCategory)
	}

	// The freshly rendered report is served from cache even without a
	// repository behind the server.
	reportResp, err := http.Get(ts.URL + "/runs/" + result.ReportID + "/report")
	if err != nil {
		t.Fatalf("GET report: %v", err)
	}
	defer reportResp.Body.Close()
	if reportResp.StatusCode != http.StatusOK {
		t.Fatalf("GET report status = %d, want 200", reportResp.StatusCode)
	}
	if ct := reportResp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("report Content-Type = %q, want text/markdown", ct)
	}
	body, _ := io.ReadAll(reportResp.Body)
	if !strings.Contains(string(body), "# Financial Report") {
		t.Error("report body missing title")
	}
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	_, ts := newTestServer(t, nil)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"missing columns", "foo,bar\n1,2\n", http.StatusUnprocessableEntity},
		{"bad amount", "date,category,amount,description\n2025-01-01,X,abc,Coffee\n", http.StatusUnprocessableEntity},
		{"empty body", "", http.StatusUnprocessableEntity},
		{"malformed csv", "date,category,amount,description\n2025-01-01,\"broken\n", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postCSV(t, ts, tt.body)
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestAnalyzeMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/analyze")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /analyze status = %d, want 405", resp.StatusCode)
	}
}

func TestQueryEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil)

	t.Run("before any data is loaded", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/query", "application/json", strings.NewReader(`{"query":"show food expenses"}`))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("status = %d, want 409", resp.StatusCode)
		}
	})

	postCSV(t, ts, sampleCSV).Body.Close()

	t.Run("category query", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/query", "application/json", strings.NewReader(`{"query":"show food expenses"}`))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		answer := decodeJSON[queryResponse](t, resp)
		if !strings.Contains(answer.Answer, "Coffee shop") {
			t.Errorf("answer = %q, want it to mention Coffee shop", answer.Answer)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/query", "application/json", strings.NewReader(`{"query":"  "}`))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/query", "application/json", strings.NewReader(`not json`))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", resp.StatusCode)
		}
	})
}

func TestBudgetEndpoints(t *testing.T) {
	_, ts := newTestServer(t, nil)
	client := &http.Client{}

	put := func(body string) *http.Response {
		req, err := http.NewRequest(http.MethodPut, ts.URL+"/budgets", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	t.Run("get defaults", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/budgets")
		if err != nil {
			t.Fatal(err)
		}
		budgets := decodeJSON[budgetsResponse](t, resp)
		if budgets.Budgets["Food"] != 50000 {
			t.Errorf("Food budget = %d, want 50000", budgets.Budgets["Food"])
		}
		if len(budgets.Budgets) != 4 {
			t.Errorf("budget count = %d, want 4", len(budgets.Budgets))
		}
	})

	t.Run("update is case-insensitive", func(t *testing.T) {
		resp := put(`{"category":"food","amount_cents":75000}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		budgets := decodeJSON[budgetsResponse](t, resp)
		if budgets.Budgets["Food"] != 75000 {
			t.Errorf("Food budget = %d, want 75000", budgets.Budgets["Food"])
		}
	})

	t.Run("unknown category", func(t *testing.T) {
		resp := put(`{"category":"Yachts","amount_cents":100}`)
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("negative amount", func(t *testing.T) {
		resp := put(`{"category":"Food","amount_cents":-1}`)
		resp.Body.Close()
		if resp.StatusCode != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", resp.StatusCode)
		}
	})
}

type stubRuns struct {
	run storage.Run
	err error
}

func (s *stubRuns) GetRunByReportID(context.Context, string) (storage.Run, error) {
	return s.run, s.err
}

func TestRunReportEndpoint(t *testing.T) {
	t.Run("not found without repository", func(t *testing.T) {
		_, ts := newTestServer(t, nil)
		resp, err := http.Get(ts.URL + "/runs/nope/report")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("not found in repository", func(t *testing.T) {
		_, ts := newTestServer(t, &stubRuns{err: storage.ErrRunNotFound})
		resp, err := http.Get(ts.URL + "/runs/nope/report")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})

	t.Run("served from report path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "financial_report_abc.md")
		if err := os.WriteFile(path, []byte("# Financial Report\nstored"), 0o644); err != nil {
			t.Fatal(err)
		}
		_, ts := newTestServer(t, &stubRuns{run: storage.Run{ID: 1, ReportID: "abc", ReportPath: path}})

		resp, err := http.Get(ts.URL + "/runs/abc/report")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		body, _ := io.ReadAll(resp.Body)
		if !strings.Contains(string(body), "stored") {
			t.Errorf("body = %q, want stored report content", body)
		}
	})

	t.Run("malformed path", func(t *testing.T) {
		_, ts := newTestServer(t, nil)
		resp, err := http.Get(ts.URL + "/runs/abc/other")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}

func TestReportIDFromPath(t *testing.T) {
	tests := []struct {
		path   string
		wantID string
		wantOK bool
	}{
		{"/runs/abc-123/report", "abc-123", true},
		{"/runs//report", "", false},
		{"/runs/abc", "", false},
		{"/runs/abc/report/extra", "", false},
	}
	for _, tt := range tests {
		id, ok := reportIDFromPath(tt.path)
		if id != tt.wantID || ok != tt.wantOK {
			t.Errorf("reportIDFromPath(%q) = (%q, %v), want (%q, %v)", tt.path, id, ok, tt.wantID, tt.wantOK)
		}
	}
}
