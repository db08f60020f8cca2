// Package cmd contains the CLI commands.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/greysquirr3l/codeguardian-go/internal/config"
	"github.com/greysquirr3l/codeguardian-go/internal/logging"
)

var (
	cfgFile      string
	cfg          *config.Config
	debugFlag    bool
	verboseFlag  bool
	quietFlag    bool
	noColorFlag  bool
	cacheDirFlag string
	noCacheFlag  bool
)

// rootCmd represents the base command.
var rootCmd = &cobra.Command{
	Use:   "codeguard",
	Short: "CodeGuardian - concurrent static security analysis",
	Long: `CodeGuardian scans source trees for security defects such as leaked
credentials, injection patterns and dangerous shell commands.

Files are analyzed concurrently; the number of workers follows the
system load, and large files are streamed in chunks.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// Skip config loading for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Override with command-line flags
		if cmd.Flags().Changed("debug") {
			cfg.Debug = debugFlag
		}
		if cmd.Flags().Changed("verbose") {
			cfg.Verbose = verboseFlag
		}
		if cmd.Flags().Changed("quiet") {
			cfg.Quiet = quietFlag
		}
		if cmd.Flags().Changed("no-color") {
			cfg.NoColor = noColorFlag
		}
		if cmd.Flags().Changed("cache-dir") {
			if cacheDirFlag == "" {
				return errors.New("--cache-dir flag cannot be empty")
			}
			cfg.CacheDirectory = config.ExpandPath(cacheDirFlag)
		}
		if cmd.Flags().Changed("no-cache") {
			cfg.CacheEnabled = !noCacheFlag
		}

		configureLogging(cfg)

		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/codeguardian/codeguardian.ini)")
	rootCmd.PersistentFlags().StringVar(&cacheDirFlag, "cache-dir", "", "cache directory (default: ~/.cache/codeguardian)")
	rootCmd.PersistentFlags().BoolVar(&noCacheFlag, "no-cache", false, "disable result caching between runs")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&quietFlag, "quiet", false, "suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")
}

func configureLogging(cfg *config.Config) {
	var level logging.Level
	switch {
	case cfg.Quiet:
		level = logging.LevelCritical
	case cfg.Debug:
		level = logging.LevelDebug
	case cfg.Verbose:
		level = logging.LevelVerbose
	default:
		level = logging.LevelInfo
	}
	logging.SetDefaultLevel(level)
	logging.SetDefaultColored(!cfg.NoColor)
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return cfg
}
