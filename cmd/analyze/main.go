// Command analyze runs the expense pipeline once over a CSV file and
// prints the rendered report, without a server, broker or database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"spendscope/internal/anomaly"
	"spendscope/internal/cli"
	applog "spendscope/internal/log"
	"spendscope/internal/report"
	"spendscope/internal/services"
)

func main() {
	var (
		filePath      = flag.String("file", "", "CSV expense file to analyze (required)")
		rulesPath     = flag.String("rules", "", "optional YAML categorization rules file")
		outputDir     = flag.String("out", "./public/reports", "directory for the written report")
		contamination = flag.Float64("contamination", anomaly.DefaultContamination, "expected anomaly fraction, in (0, 0.5]")
		seed          = flag.Int64("seed", anomaly.DefaultSeed, "detector random seed")
		queryText     = flag.String("query", "", "optional free-text query to answer after analysis")
	)
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: analyze -file expenses.csv [-rules rules.yaml] [-query \"show food expenses\"]")
		os.Exit(2)
	}

	logger := cli.SetupLogger(applog.ComponentApp)
	ctx := context.Background()

	table := cli.LoadRules(logger, *rulesPath)
	detector := anomaly.NewIsolationForest(*contamination, *seed)
	renderer := report.New(*outputDir)
	svc := services.NewAnalyzerService(detector, table, renderer, nil, nil)

	records, err := svc.LoadFile(ctx, *filePath)
	if err != nil {
		logger.Error("Failed to load expense file", applog.FieldError, err.Error(), "path", *filePath)
		os.Exit(1)
	}
	logger.Info("Loaded expense file", "path", *filePath, applog.FieldRecordCount, records)

	result, err := svc.Analyze(ctx)
	if err != nil {
		logger.Error("Analysis failed", applog.FieldError, err.Error())
		os.Exit(1)
	}

	fmt.Println(result.Report)
	logger.Info("Report written",
		applog.FieldReportID, result.ReportID,
		"path", result.ReportPath,
		applog.FieldAnomalyCount, result.Summary.AnomalyCount)

	if *queryText != "" {
		answer, err := svc.Answer(ctx, *queryText)
		if err != nil {
			logger.Error("Query failed", applog.FieldError, err.Error())
			os.Exit(1)
		}
		fmt.Println(answer)
	}
}
