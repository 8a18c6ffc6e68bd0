// Package cli provides CLI output formatting for codesight.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperjump/codesight/internal/models"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputCompact is one result per line (compact text).
	OutputCompact SearchOutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
)

// WriteQueryResults writes a query response to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteQueryResults(w io.Writer, resp *models.QueryResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case OutputCompact:
		writeQueryResultsCompact(w, resp)
		return nil
	default:
		writeQueryResultsText(w, resp)
		return nil
	}
}

func writeQueryResultsText(w io.Writer, resp *models.QueryResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms\n", resp.TotalCount, resp.ExecutionTimeMs)
	if resp.FromCache {
		fmt.Fprintln(w, "(served from cache)")
	}
	if resp.TimedOut {
		fmt.Fprintln(w, "(query timed out; results may be partial)")
	}
	fmt.Fprintln(w)
	for _, r := range resp.Results {
		writeOneResult(w, r)
	}
	if resp.HasMore {
		fmt.Fprintln(w, "... more results available")
	}
}

func writeOneResult(w io.Writer, r *models.QueryResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "[%s] %s  score %.4f\n", r.Kind, r.Name, r.Score)
	fmt.Fprintf(w, "%s:%d\n", r.FilePath, r.StartLine)
	if r.Highlighted != "" {
		fmt.Fprintf(w, "\n%s\n", r.Highlighted)
	} else if r.Snippet != "" {
		fmt.Fprintf(w, "\n%s\n", Truncate(r.Snippet, 200))
	}
	fmt.Fprintln(w)
}

// writeQueryResultsCompact writes one result per line (kind, score, location).
func writeQueryResultsCompact(w io.Writer, resp *models.QueryResponse) {
	fmt.Fprintf(w, "Found %d results in %dms\n", resp.TotalCount, resp.ExecutionTimeMs)
	for _, r := range resp.Results {
		fmt.Fprintf(w, "[%s] %.4f | %s | %s:%d\n", r.Kind, r.Score, r.Name, r.FilePath, r.StartLine)
	}
}

// PrintQueryResults prints a query response to stdout in text format.
func PrintQueryResults(resp *models.QueryResponse) {
	_ = WriteQueryResults(os.Stdout, resp, OutputText)
}

// SanitizeForLine replaces newlines and tabs with spaces for single-line output.
func SanitizeForLine(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "\t", " "))
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
