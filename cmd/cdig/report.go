package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/franz/crate-digger/internal/report"
	"github.com/franz/crate-digger/internal/store"
	"github.com/franz/crate-digger/internal/util"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a summary report from the database and event logs",
	Long: `Generate a summary report in Markdown format.

The report includes:
- The current catalog and its normalization report
- Malformed records from the latest load
- Load history
- Request statistics, rejection reasons and top errors (with --event-log)

The report is saved to artifacts/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("out", "", "Output directory for report (default: artifacts/reports/<timestamp>)")
	reportCmd.Flags().String("event-log", "", "Path to event log file (optional)")
	reportCmd.Flags().Int("history", 10, "Number of catalog loads to include")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := currentConfig()
	if err != nil {
		return err
	}

	util.InfoLog("=== Generating Summary Report ===")
	util.InfoLog("Database: %s", cfg.DB)

	db, err := openStore(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	history, _ := cmd.Flags().GetInt("history")
	eventLogPath, _ := cmd.Flags().GetString("event-log")

	summary, err := buildSummary(cmd.Context(), db, history, eventLogPath)
	if err != nil {
		return err
	}
	summary.DatabasePath = cfg.DB

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join("artifacts", "reports", timestamp)
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report generated successfully!")
	if len(summary.Loads) > 0 {
		latest := summary.Loads[0]
		util.InfoLog("  Tracks: %s", util.FormatCount(latest.Tracks))
		util.InfoLog("  Dimension: %d", latest.Dimension)
		if latest.Rejected+latest.GenreRejected > 0 {
			util.WarnLog("  Malformed rows: %d", latest.Rejected+latest.GenreRejected)
		}
	}
	if ev := summary.Events; ev != nil {
		util.InfoLog("  Requests: %d (%d failed)", ev.Requests, ev.FailedRequests)
	}
	return nil
}

// buildSummary gathers load history from the store and, when given, the
// aggregated event log
func buildSummary(ctx context.Context, db *store.Store, history int, eventLogPath string) (*report.SummaryReport, error) {
	loads, err := db.ListLoads(ctx, history)
	if err != nil {
		return nil, err
	}

	summary := &report.SummaryReport{
		GeneratedAt:  time.Now(),
		EventLogPath: eventLogPath,
		Loads:        make([]report.LoadInfo, len(loads)),
	}
	for i, l := range loads {
		summary.Loads[i] = loadInfo(l)
	}

	if eventLogPath != "" {
		events, err := report.SummarizeEventLog(eventLogPath, 10)
		if err != nil {
			return nil, err
		}
		summary.Events = events
	}
	return summary, nil
}

func loadInfo(l *store.Load) report.LoadInfo {
	return report.LoadInfo{
		LoadedAt:      l.LoadedAt,
		Source:        l.Source,
		SpaceID:       l.SpaceID,
		TrackRows:     l.TrackRows,
		GenreRows:     l.GenreRows,
		Tracks:        l.Tracks,
		Rejected:      l.Rejected,
		GenreRejected: l.GenreRejected,
		Duplicates:    l.Duplicates,
		DuplicateIDs:  l.DuplicateIDs,
		WithoutGenres: l.WithoutGenres,
		Dimension:     l.Dimension,
		Duration:      l.Duration,
		Errors:        l.Errors,
	}
}
