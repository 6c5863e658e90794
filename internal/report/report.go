// Package report renders a run's summary and anomalies into a markdown
// financial report and manages the per-run artifact files.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"spendscope/internal/core"
)

// Chart base names. Rasterization happens outside this process; the
// renderer only references the files a chart producer may have dropped
// into the output directory for the same report ID.
const (
	TrendChart     = "expense_trend"
	BreakdownChart = "category_breakdown"
	AnomalyChart   = "anomalies"
)

// NoAnomaliesMarker is rendered in place of the anomaly table when the
// detector flagged nothing.
const NoAnomaliesMarker = "No anomalies detected."

// Renderer builds report artifacts under OutputDir. Now is overridable
// for tests and defaults to time.Now.
type Renderer struct {
	OutputDir string
	Now       func() time.Time
}

func New(outputDir string) *Renderer {
	return &Renderer{OutputDir: outputDir, Now: time.Now}
}

// Render produces the markdown report for one analysis run.
func (r *Renderer) Render(reportID string, summary core.Summary, anomalies []core.Expense) string {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Financial Report\n")
	fmt.Fprintf(&b, "## Generated on: %s\n", now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "## Report ID: %s\n\n", reportID)

	fmt.Fprintf(&b, "## Executive Summary\n")
	fmt.Fprintf(&b, "- **Total Expenses**: %s\n", summary.Total.Format())
	fmt.Fprintf(&b, "- **Average Transaction**: %s\n", summary.Average.Format())
	fmt.Fprintf(&b, "- **Number of Anomalies Detected**: %d\n\n", summary.AnomalyCount)

	fmt.Fprintf(&b, "## Category Breakdown\n")
	for _, ca := range summary.ByCategory {
		fmt.Fprintf(&b, "%s    %s\n", ca.Name, ca.Amount.Format())
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Budget Status\n")
	b.WriteString(budgetStatusLines(summary))
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Anomaly Details\n")
	if len(anomalies) == 0 {
		b.WriteString(NoAnomaliesMarker + "\n")
	} else {
		b.WriteString("date        category       amount      description\n")
		for _, e := range anomalies {
			fmt.Fprintf(&b, "%s  %-13s  %10s  %s\n",
				e.Date.Format("2006-01-02"), e.Category, e.Amount.Format(), e.Description)
		}
	}
	b.WriteString("\n")

	top := summary.TopCategory()
	if top == "" {
		top = "N/A"
	}
	fmt.Fprintf(&b, "## Actionable Insights\n")
	fmt.Fprintf(&b, "1. **Review High-Value Transactions**: Investigate anomalies flagged in the report.\n")
	fmt.Fprintf(&b, "2. **Optimize Spending**: Categories with high expenses (e.g., %s) may offer cost reduction opportunities.\n", top)
	fmt.Fprintf(&b, "3. **Monitor Budgets**: Check categories marked as 'Over budget' and adjust spending.\n\n")

	if charts := r.chartLinks(reportID); len(charts) > 0 {
		fmt.Fprintf(&b, "## Visualizations\n")
		for _, c := range charts {
			b.WriteString(c + "\n")
		}
		b.WriteString("\n")
	}

	alert := core.Money{Cents: summary.Average.Cents * 3}
	fmt.Fprintf(&b, "## Recommendations\n")
	fmt.Fprintf(&b, "- Implement automated alerts for transactions exceeding %s.\n", alert.Format())
	fmt.Fprintf(&b, "- Review budget status monthly to stay within limits.\n")
	fmt.Fprintf(&b, "- Consider forecasting models for future expense planning.\n")

	return b.String()
}

// budgetStatusLines formats one line per budgeted category in name order.
func budgetStatusLines(summary core.Summary) string {
	names := make([]string, 0, len(summary.BudgetStatus))
	for name := range summary.BudgetStatus {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		status := summary.BudgetStatus[name]
		verdict := "Within budget"
		if status.OverBudget {
			verdict = "Over budget"
		}
		fmt.Fprintf(&b, "%s: Budget %s, Spent %s, Remaining %s (%s)\n",
			name, status.Budget.Format(), status.Spent.Format(), status.Remaining.Format(), verdict)
	}
	return b.String()
}

// chartLinks returns markdown image links for the run's charts that
// actually exist on disk. A chart producer that never ran, or one that
// skipped the anomaly scatter because nothing was flagged, leaves gaps
// here and that is fine.
func (r *Renderer) chartLinks(reportID string) []string {
	titles := map[string]string{
		TrendChart:     "Daily Expense Trend",
		BreakdownChart: "Category Breakdown",
		AnomalyChart:   "Anomalies",
	}
	var links []string
	for _, chart := range []string{TrendChart, BreakdownChart, AnomalyChart} {
		path := r.ChartPath(chart, reportID)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		links = append(links, fmt.Sprintf("![%s](%s)", titles[chart], path))
	}
	return links
}

// ChartPath is the expected on-disk location of a chart image for a run.
func (r *Renderer) ChartPath(chart, reportID string) string {
	return filepath.Join(r.OutputDir, fmt.Sprintf("%s_%s.png", chart, reportID))
}

// ReportPath is the on-disk location of the written markdown report.
func (r *Renderer) ReportPath(reportID string) string {
	return filepath.Join(r.OutputDir, fmt.Sprintf("financial_report_%s.md", reportID))
}

// WriteReport renders the report and persists it under OutputDir,
// creating the directory when needed. Returns the written path.
func (r *Renderer) WriteReport(reportID string, summary core.Summary, anomalies []core.Expense) (string, error) {
	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := r.ReportPath(reportID)
	if err := os.WriteFile(path, []byte(r.Render(reportID, summary, anomalies)), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
