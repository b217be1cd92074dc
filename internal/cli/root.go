package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"FinCoord/pkg/config"
)

var (
	cfgFile   string
	logLevel  string
	cfgHandle *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "fincoord",
	Short:         "Coordinate overlapping financial market events",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgHandle != nil {
			return nil
		}

		cfg, err := config.LoadWithEnv(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		cfgHandle = cfg
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(coordinateCmd)
	rootCmd.AddCommand(versionCmd)
}

func getConfig() *config.Config {
	if cfgHandle == nil {
		panic("configuration not loaded; PersistentPreRunE not executed")
	}
	return cfgHandle
}
