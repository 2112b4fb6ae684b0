package report

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/franz/crate-digger/internal/util"
)

// SummaryReport represents a complete summary report
type SummaryReport struct {
	GeneratedAt time.Time

	// Catalog load history, newest first
	Loads []LoadInfo

	// From the event log
	Events *EventSummary

	// Metadata
	DatabasePath string
	EventLogPath string
}

// LoadInfo is one catalog load as shown in the report
type LoadInfo struct {
	LoadedAt      time.Time
	Source        string
	SpaceID       string
	TrackRows     int
	GenreRows     int
	Tracks        int
	Rejected      int
	GenreRejected int
	Duplicates    int
	DuplicateIDs  int
	WithoutGenres int
	Dimension     int
	Duration      time.Duration
	Errors        []string
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// EventSummary aggregates an event log
type EventSummary struct {
	Events           int
	Requests         int
	FailedRequests   int
	ItemsReturned    int
	UnresolvedTotal  int
	ProviderFailures int
	Reloads          int
	FailedReloads    int
	TotalRequestTime time.Duration
	TopRejections    []ErrorSummary
	TopErrors        []ErrorSummary
}

// AvgRequestTime returns the mean request duration
func (s *EventSummary) AvgRequestTime() time.Duration {
	if s.Requests == 0 {
		return 0
	}
	return s.TotalRequestTime / time.Duration(s.Requests)
}

// SummarizeEventLog reads a JSONL event log and aggregates it. Lines that do
// not decode are skipped.
func SummarizeEventLog(path string, limit int) (*EventSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	summary := &EventSummary{}
	rejections := make(map[string]int)
	failures := make(map[string]int)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			util.DebugLog("Skipping undecodable event line: %v", err)
			continue
		}
		summary.Events++

		switch e.Event {
		case EventReject:
			rejections[fmt.Sprintf("%s.%s: %s", e.Table, e.Field, e.Reason)]++
		case EventRecommend:
			summary.Requests++
			summary.ItemsReturned += e.Count
			summary.TotalRequestTime += time.Duration(e.Duration) * time.Millisecond
			if e.Error != "" {
				summary.FailedRequests++
				failures[e.Error]++
			}
		case EventUnresolved:
			summary.UnresolvedTotal += e.Count
		case EventProvider:
			summary.ProviderFailures++
		case EventReload:
			summary.Reloads++
			if e.Error != "" {
				summary.FailedReloads++
				failures[e.Error]++
			}
		case EventError:
			failures[e.Error]++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}

	summary.TopRejections = topCounts(rejections, limit)
	summary.TopErrors = topCounts(failures, limit)
	return summary, nil
}

// topCounts sorts by count descending, then by message
func topCounts(counts map[string]int, limit int) []ErrorSummary {
	out := make([]ErrorSummary, 0, len(counts))
	for msg, n := range counts {
		out = append(out, ErrorSummary{Error: msg, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Error < out[j].Error
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(RenderMarkdown(report)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// RenderMarkdown renders the report
func RenderMarkdown(report *SummaryReport) string {
	var md strings.Builder

	md.WriteString("# crate-digger - Catalog Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}
	md.WriteString("---\n\n")

	if len(report.Loads) == 0 {
		md.WriteString("*No catalog loads recorded.*\n\n")
	} else {
		latest := report.Loads[0]
		md.WriteString("## Current Catalog\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Source | `%s` |\n", truncatePath(latest.Source, 60)))
		md.WriteString(fmt.Sprintf("| Feature Space | `%s` |\n", latest.SpaceID))
		md.WriteString(fmt.Sprintf("| Loaded | %s |\n", latest.LoadedAt.Format("2006-01-02 15:04:05")))
		md.WriteString(fmt.Sprintf("| Track Rows | %s |\n", util.FormatCount(latest.TrackRows)))
		md.WriteString(fmt.Sprintf("| Tracks | %s |\n", util.FormatCount(latest.Tracks)))
		md.WriteString(fmt.Sprintf("| Dimension | %d |\n", latest.Dimension))
		if latest.Rejected > 0 || latest.GenreRejected > 0 {
			md.WriteString(fmt.Sprintf("| Malformed Rows | %s tracks, %s genres |\n",
				util.FormatCount(latest.Rejected), util.FormatCount(latest.GenreRejected)))
		}
		md.WriteString(fmt.Sprintf("| Duplicates Collapsed | %s |\n", util.FormatCount(latest.Duplicates+latest.DuplicateIDs)))
		md.WriteString(fmt.Sprintf("| Tracks Without Genres | %s |\n", util.FormatCount(latest.WithoutGenres)))
		md.WriteString(fmt.Sprintf("| Load Time | %s |\n", latest.Duration.Round(time.Millisecond)))
		md.WriteString("\n")

		if len(latest.Errors) > 0 {
			md.WriteString("### Malformed Records\n\n")
			for _, e := range latest.Errors {
				md.WriteString(fmt.Sprintf("- %s\n", e))
			}
			md.WriteString("\n")
		}

		if len(report.Loads) > 1 {
			md.WriteString("## Load History\n\n")
			md.WriteString("| Loaded | Tracks | Rejected | Duplicates | D | Time |\n")
			md.WriteString("|--------|--------|----------|------------|---|------|\n")
			for _, l := range report.Loads {
				md.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %d | %s |\n",
					l.LoadedAt.Format("2006-01-02 15:04"), util.FormatCount(l.Tracks),
					l.Rejected+l.GenreRejected, l.Duplicates+l.DuplicateIDs, l.Dimension,
					l.Duration.Round(time.Millisecond)))
			}
			md.WriteString("\n")
		}
	}

	if ev := report.Events; ev != nil {
		md.WriteString("## Requests\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Recommendations | %d |\n", ev.Requests))
		if ev.FailedRequests > 0 {
			md.WriteString(fmt.Sprintf("| Failed | %d |\n", ev.FailedRequests))
		}
		md.WriteString(fmt.Sprintf("| Tracks Returned | %s |\n", util.FormatCount(ev.ItemsReturned)))
		md.WriteString(fmt.Sprintf("| Unresolved Playlist Entries | %s |\n", util.FormatCount(ev.UnresolvedTotal)))
		if ev.ProviderFailures > 0 {
			md.WriteString(fmt.Sprintf("| Provider Failures | %d |\n", ev.ProviderFailures))
		}
		if ev.Requests > 0 {
			md.WriteString(fmt.Sprintf("| Avg Request Time | %s |\n", ev.AvgRequestTime().Round(time.Millisecond)))
		}
		md.WriteString(fmt.Sprintf("| Reloads | %d (%d failed) |\n", ev.Reloads, ev.FailedReloads))
		md.WriteString("\n")

		if len(ev.TopRejections) > 0 {
			md.WriteString("## Top Rejection Reasons\n\n")
			md.WriteString("| Count | Reason |\n")
			md.WriteString("|-------|--------|\n")
			for _, r := range ev.TopRejections {
				md.WriteString(fmt.Sprintf("| %d | %s |\n", r.Count, r.Error))
			}
			md.WriteString("\n")
		}

		if len(ev.TopErrors) > 0 {
			md.WriteString("## Top Errors\n\n")
			md.WriteString("| Count | Error |\n")
			md.WriteString("|-------|-------|\n")
			for _, e := range ev.TopErrors {
				md.WriteString(fmt.Sprintf("| %d | %s |\n", e.Count, e.Error))
			}
			md.WriteString("\n")
		}
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by [crate-digger](https://github.com/franz/crate-digger)*\n")
	return md.String()
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
