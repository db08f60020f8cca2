// Package report renders analysis results for people and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/greysquirr3l/codeguardian-go/internal/engine"
	"github.com/greysquirr3l/codeguardian-go/internal/finding"
)

// Format selects an output renderer.
type Format string

// Supported formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatText, FormatJSON:
		return f, nil
	case "human":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want text or json)", name)
	}
}

// Options control what is rendered.
type Options struct {
	// MinSeverity hides findings below it.
	MinSeverity finding.Severity
	// Colored enables severity colors in text output.
	Colored bool
}

// Filter returns a copy of results holding only findings at or above
// minSeverity, with the finding summary recomputed. File counts are
// unchanged.
func Filter(results *engine.AnalysisResults, minSeverity finding.Severity) *engine.AnalysisResults {
	out := *results
	out.Findings = make([]finding.Finding, 0, len(results.Findings))
	out.Summary.Summary = finding.NewSummary()
	for i := range results.Findings {
		if results.Findings[i].Severity < minSeverity {
			continue
		}
		out.Findings = append(out.Findings, results.Findings[i])
		out.Summary.Add(&results.Findings[i])
	}
	return &out
}

// Write renders results to w in format.
func Write(w io.Writer, results *engine.AnalysisResults, format Format, opts Options) error {
	filtered := Filter(results, opts.MinSeverity)
	filtered.Sort()

	switch format {
	case FormatJSON:
		return writeJSON(w, filtered)
	case FormatText:
		return writeText(w, filtered, opts.Colored)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

func writeJSON(w io.Writer, results *engine.AnalysisResults) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results); err != nil {
		return fmt.Errorf("encoding results: %w", err)
	}
	return nil
}

func severityColor(sev finding.Severity, colored bool) *color.Color {
	var c *color.Color
	switch sev {
	case finding.SeverityCritical:
		c = color.New(color.FgRed, color.Bold)
	case finding.SeverityHigh:
		c = color.New(color.FgRed)
	case finding.SeverityMedium:
		c = color.New(color.FgYellow)
	case finding.SeverityLow:
		c = color.New(color.FgCyan)
	default:
		c = color.New(color.FgWhite)
	}
	if colored {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

// writeText prints findings grouped by file, then the summary. Severity
// is padded before coloring so escape codes do not break alignment.
func writeText(w io.Writer, results *engine.AnalysisResults, colored bool) error {
	ew := &errWriter{w: w}

	ruleWidth := 0
	for i := range results.Findings {
		ruleWidth = max(ruleWidth, len(results.Findings[i].Rule))
	}

	file := ""
	for i := range results.Findings {
		f := &results.Findings[i]
		if f.File != file {
			if file != "" {
				ew.printf("\n")
			}
			file = f.File
			ew.printf("%s\n", file)
		}

		pos := fmt.Sprintf("%d", f.Line)
		if f.Column != nil {
			pos = fmt.Sprintf("%d:%d", f.Line, *f.Column)
		}
		sev := severityColor(f.Severity, colored).Sprint(fmt.Sprintf("%-8s", f.Severity))
		ew.printf("  %-9s %s %-*s  %s\n", pos, sev, ruleWidth, f.Rule, f.Message)
		if f.Suggestion != "" {
			ew.printf("  %-9s %-8s %-*s  → %s\n", "", "", ruleWidth, "", f.Suggestion)
		}
	}
	if len(results.Findings) > 0 {
		ew.printf("\n")
	}

	if len(results.Failures) > 0 {
		ew.printf("Failures:\n")
		for _, fe := range results.Failures {
			ew.printf("  %s: %s %s\n", fe.Path, fe.Code, fe.Message)
		}
		ew.printf("\n")
	}

	if ew.err != nil {
		return ew.err
	}
	return writeSummary(w, &results.Summary)
}

func writeSummary(w io.Writer, s *engine.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	ew := &errWriter{w: tw}

	ew.printf("Files scanned:\t%d\n", s.TotalFilesScanned)
	if s.FilesFailed > 0 {
		ew.printf("Files failed:\t%d\n", s.FilesFailed)
	}
	ew.printf("Findings:\t%d\n", s.TotalFindings)
	for sev := finding.SeverityCritical; sev >= finding.SeverityInfo; sev-- {
		if n := s.BySeverity[sev]; n > 0 {
			ew.printf("  %s\t%d\n", sev, n)
		}
	}

	analyzers := make([]string, 0, len(s.ByAnalyzer))
	for name := range s.ByAnalyzer {
		analyzers = append(analyzers, name)
	}
	sort.Strings(analyzers)
	for _, name := range analyzers {
		ew.printf("  %s\t%d\n", name, s.ByAnalyzer[name])
	}
	ew.printf("Duration:\t%dms\n", s.ScanDurationMs)

	if ew.err != nil {
		return ew.err
	}
	return tw.Flush()
}

// errWriter keeps the first write error so printing code stays linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
