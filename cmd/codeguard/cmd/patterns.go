package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/greysquirr3l/codeguardian-go/internal/analysis"
	"github.com/greysquirr3l/codeguardian-go/internal/matcher"
	"github.com/greysquirr3l/codeguardian-go/internal/report"
)

var patternsFormat string

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the detection rules",
	Long: `List the built-in literal patterns and any extra regex rules from
configuration (extra_patterns).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPatterns(cmd.OutOrStdout())
	},
}

func init() {
	patternsCmd.Flags().StringVarP(&patternsFormat, "format", "f", "text", "output format: text, json")
	rootCmd.AddCommand(patternsCmd)
}

// ruleInfo is one row of the patterns listing.
type ruleInfo struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Category string `json:"category"`
	Pattern  string `json:"pattern"`
}

func runPatterns(w io.Writer) error {
	format, err := report.ParseFormat(patternsFormat)
	if err != nil {
		return err
	}

	m, err := matcher.NewDefault()
	if err != nil {
		return fmt.Errorf("building matcher: %w", err)
	}

	var rules []ruleInfo
	for _, p := range m.Patterns() {
		rules = append(rules, ruleInfo{
			Name:     p.Metadata.Name,
			Kind:     "literal",
			Severity: p.Metadata.Severity.String(),
			Category: p.Metadata.Category,
			Pattern:  p.Text,
		})
	}

	var extra []string
	if cfg := GetConfig(); cfg != nil {
		extra = cfg.ExtraPatterns
	}
	for _, r := range analysis.ParseRules(extra) {
		rules = append(rules, ruleInfo{
			Name:     r.Name,
			Kind:     "regex",
			Severity: r.Severity.String(),
			Category: r.Category,
			Pattern:  r.Pattern,
		})
	}

	stats := m.Stats()
	if format == report.FormatJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(map[string]interface{}{
			"rules":           rules,
			"total_patterns":  stats.TotalPatterns,
			"categories":      stats.Categories,
			"longest_pattern": stats.LongestPattern,
			"extra_rules":     len(rules) - stats.TotalPatterns,
		})
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tKIND\tSEVERITY\tCATEGORY\tPATTERN")
	for _, r := range rules {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%q\n", r.Name, r.Kind, r.Severity, r.Category, r.Pattern)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "\n%d literal patterns in %d categories, %d extra rules\n",
		stats.TotalPatterns, stats.Categories, len(rules)-stats.TotalPatterns)
	return err
}
