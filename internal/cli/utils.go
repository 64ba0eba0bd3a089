// Package cli provides output helpers for the Kessan command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/kessan/internal/indexer"
	"github.com/hyperjump/kessan/internal/models"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use text or json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteEnvelope writes an analysis envelope to w in the given format.
func WriteEnvelope(w io.Writer, env *models.Envelope, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, env)
	}
	fmt.Fprintf(w, "\n%s Analysis\n", env.AnalysisType.Title())
	fmt.Fprintln(w, strings.Repeat("─", 57))
	if !env.OK() {
		fmt.Fprintf(w, "Error: %s\n", env.Message)
		return nil
	}
	res := env.Result
	if res.Question != "" {
		fmt.Fprintf(w, "Question: %s\n\n", res.Question)
	}
	fmt.Fprintf(w, "%s\n\n", strings.TrimSpace(res.Text()))
	if len(res.RiskKeywords) > 0 {
		fmt.Fprintf(w, "Risk keywords: %s\n", strings.Join(res.RiskKeywords, ", "))
	}
	fmt.Fprintf(w, "Sources: %d document(s) | Companies: %s | Quarters: %s\n",
		res.SourceDocuments, strings.Join(res.Companies, ", "), strings.Join(res.Quarters, ", "))
	return nil
}

// WriteReport writes an ingestion report to w in the given format.
func WriteReport(w io.Writer, report *indexer.Report, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	for _, f := range report.Files {
		switch {
		case f.Error != "":
			fmt.Fprintf(w, "FAILED  %s: %s\n", f.Path, f.Error)
		case f.Skipped:
			fmt.Fprintf(w, "SKIPPED %s (unchanged)\n", f.Path)
		default:
			fmt.Fprintf(w, "OK      %s (%d chunks)\n", f.Path, f.Chunks)
		}
	}
	fmt.Fprintf(w, "\n%d file(s), %d chunk(s) added, %d skipped, %d failed\n",
		len(report.Files), report.Chunks, report.Skipped, report.Failed)
	return nil
}

// WriteStats writes index statistics to w in the given format.
func WriteStats(w io.Writer, stats *models.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "State:           %s\n", stats.State)
	fmt.Fprintf(w, "Total documents: %d\n", stats.TotalDocuments)
	fmt.Fprintf(w, "Sources:         %d\n", stats.Sources)
	fmt.Fprintf(w, "Disk usage:      %s\n", FormatBytes(stats.DiskBytes))
	names := make([]string, 0, len(stats.DiskBreakdown))
	for name := range stats.DiskBreakdown {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-28s %s\n", name, FormatBytes(stats.DiskBreakdown[name]))
	}
	fmt.Fprintf(w, "Companies:       %s\n", joinOrNone(stats.Companies))
	quarters := make([]string, len(stats.Quarters))
	for i, q := range stats.Quarters {
		quarters[i] = q.String()
	}
	fmt.Fprintf(w, "Quarters:        %s\n", joinOrNone(quarters))
	return nil
}

// WriteList writes one item per line, or a JSON object {key: items}.
func WriteList(w io.Writer, key string, items []string, format OutputFormat) error {
	if format == OutputJSON {
		if items == nil {
			items = []string{}
		}
		return writeJSON(w, map[string][]string{key: items})
	}
	if len(items) == 0 {
		fmt.Fprintf(w, "No %s found\n", key)
		return nil
	}
	for _, item := range items {
		fmt.Fprintln(w, item)
	}
	return nil
}

// FormatBytes renders n in binary units, e.g. "1.5 MiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
