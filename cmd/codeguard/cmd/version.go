package cmd

import (
	"github.com/spf13/cobra"

	"github.com/greysquirr3l/codeguardian-go/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display the version of CodeGuardian and build information.`,
	Run: func(cmd *cobra.Command, _ []string) {
		version.Fprint(cmd.OutOrStdout(), version.GetBuildInfo())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
