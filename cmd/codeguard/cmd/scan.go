package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/greysquirr3l/codeguardian-go/internal/config"
	"github.com/greysquirr3l/codeguardian-go/internal/engine"
	"github.com/greysquirr3l/codeguardian-go/internal/finding"
	"github.com/greysquirr3l/codeguardian-go/internal/logging"
	"github.com/greysquirr3l/codeguardian-go/internal/report"
	"github.com/greysquirr3l/codeguardian-go/internal/scanner"
)

// ErrFindingsAboveThreshold is returned by scan when --fail-on is met.
var ErrFindingsAboveThreshold = errors.New("findings at or above the failure threshold")

var (
	scanOutput      string
	scanFormat      string
	scanMinSeverity string
	scanFailOn      string
	scanIncludeAll  bool
	scanExclude     []string
	scanPatterns    []string
	scanWorkers     int
	scanProgress    bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [paths...]",
	Short: "Scan source files for security defects",
	Long: `Scan files and directories for security defects.

Directories are walked recursively; VCS and dependency directories are
skipped. Only source files are analyzed unless --include-all is given.
Interrupting the scan still prints the results gathered so far.`,
	Example: `  # Scan the current directory
  codeguard scan

  # Scan two trees and write JSON
  codeguard scan --format json --output findings.json ./api ./web

  # Fail a CI job on high or critical findings
  codeguard scan --fail-on high .

  # Add a custom rule
  codeguard scan --pattern 'debug_flag=DEBUG\s*=\s*True' .`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"."}
		}
		return runScan(cmd, args)
	},
}

func init() {
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "output file (default: stdout)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "text", "output format: text, json")
	scanCmd.Flags().StringVar(&scanMinSeverity, "min-severity", "info", "hide findings below this severity")
	scanCmd.Flags().StringVar(&scanFailOn, "fail-on", "", "exit with status 2 when a finding at or above this severity exists")
	scanCmd.Flags().BoolVar(&scanIncludeAll, "include-all", false, "analyze every file, not just source files")
	scanCmd.Flags().StringSliceVar(&scanExclude, "exclude", nil, "regex of paths to skip (repeatable)")
	scanCmd.Flags().StringArrayVar(&scanPatterns, "pattern", nil, "extra regex rule, name=regex or regex (repeatable)")
	scanCmd.Flags().IntVarP(&scanWorkers, "workers", "w", 0, "maximum concurrent files (default from config)")
	scanCmd.Flags().BoolVar(&scanProgress, "progress", false, "report progress on stderr")

	rootCmd.AddCommand(scanCmd)
}

// applyScanFlags folds scan flags into cfg.
func applyScanFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("include-all") {
		cfg.IncludeAll = scanIncludeAll
	}
	cfg.ExcludePatterns = append(cfg.ExcludePatterns, scanExclude...)
	cfg.ExtraPatterns = append(cfg.ExtraPatterns, scanPatterns...)
	if scanWorkers > 0 {
		cfg.MaxWorkers = scanWorkers
		cfg.MinWorkers = min(cfg.MinWorkers, scanWorkers)
		cfg.InitialWorkers = min(cfg.InitialWorkers, scanWorkers)
	}
}

func runScan(cmd *cobra.Command, paths []string) error {
	cfg := GetConfig()
	if cfg == nil {
		return errors.New("configuration not loaded")
	}
	applyScanFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	format, err := report.ParseFormat(scanFormat)
	if err != nil {
		return err
	}
	minSeverity, err := finding.ParseSeverity(scanMinSeverity)
	if err != nil {
		return fmt.Errorf("--min-severity: %w", err)
	}
	var failOn *finding.Severity
	if scanFailOn != "" {
		sev, err := finding.ParseSeverity(scanFailOn)
		if err != nil {
			return fmt.Errorf("--fail-on: %w", err)
		}
		failOn = &sev
	}

	logger := logging.Default()
	opts := []scanner.Option{scanner.WithLogger(logger)}
	if scanProgress && !cfg.Quiet {
		opts = append(opts, scanner.WithProgress(progressPrinter(cmd.ErrOrStderr())))
	}
	sc, err := scanner.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize scanner: %w", err)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Verbose("Scanning %d path(s)", len(paths))
	results, scanErr := sc.Scan(ctx, paths)
	if scanErr != nil {
		if results == nil {
			return scanErr
		}
		if !errors.Is(scanErr, context.Canceled) {
			return scanErr
		}
		logger.Warning("Scan interrupted, reporting partial results")
	}

	if err := sc.Close(); err != nil {
		logger.Warning("%v", err)
	}

	stats := sc.Stats()
	logger.Debug("Scan %s: result cache %d hits / %d requests, regex cache %d hits / %d requests, peak workers %d",
		stats.ScanID,
		stats.ResultCache.CacheHits, stats.ResultCache.TotalRequests,
		stats.RegexCache.CacheHits, stats.RegexCache.TotalRequests,
		results.Summary.PeakConcurrency)

	if err := writeResults(cmd.OutOrStdout(), results, format, report.Options{
		MinSeverity: minSeverity,
		Colored:     !cfg.NoColor && !color.NoColor && scanOutput == "",
	}); err != nil {
		return err
	}

	if failOn != nil {
		if highest, ok := results.Summary.HighestSeverity(); ok && highest >= *failOn {
			return fmt.Errorf("%w: %s", ErrFindingsAboveThreshold, highest)
		}
	}
	return scanErr
}

func writeResults(stdout io.Writer, results *engine.AnalysisResults, format report.Format, opts report.Options) error {
	if scanOutput == "" {
		return report.Write(stdout, results, format, opts)
	}

	f, err := os.Create(scanOutput) // #nosec G304 -- output path is chosen by the user
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := report.Write(f, results, format, opts); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	logging.Info("Results written to %s", scanOutput)
	return nil
}

// progressPrinter rewrites one status line on w.
func progressPrinter(w io.Writer) func(done, total int) {
	return func(done, total int) {
		_, _ = fmt.Fprintf(w, "\rAnalyzed %d/%d files", done, total)
		if done == total {
			_, _ = fmt.Fprintln(w)
		}
	}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if errors.Is(err, ErrFindingsAboveThreshold) {
		return 2
	}
	return 1
}
