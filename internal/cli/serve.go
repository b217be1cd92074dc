package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"FinCoord/internal/di"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the Kafka request consumer and the result pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := di.InitializeApp(getConfig())
		if err != nil {
			return fmt.Errorf("app initialization failed: %w", err)
		}
		return app.Run(cmd.Context())
	},
}
