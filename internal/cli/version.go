package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set through -ldflags "-X FinCoord/internal/cli.Version=...".
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "version: %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildDate)
	},
}
