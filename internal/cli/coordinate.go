package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"FinCoord/internal/di"
	"FinCoord/internal/domain/models"
	"FinCoord/internal/services/coordination"
	applogger "FinCoord/pkg/logger"
)

var (
	coordinateFile string
	coordinateMode string
)

var coordinateCmd = &cobra.Command{
	Use:   "coordinate",
	Short: "Run one coordination pass over events read from a file and print the result",
	Long: "Reads either a coordination request object or a bare array of events " +
		"from --file (\"-\" for stdin) and runs a single pass with an in-process engine.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if coordinateFile == "" {
			return errors.New("--file is required")
		}

		raw, err := readInput(cmd, coordinateFile)
		if err != nil {
			return err
		}
		req, err := decodeRequest(raw)
		if err != nil {
			return err
		}
		if coordinateMode != "" {
			req.CoordinationMode = coordinateMode
		}

		cfg := getConfig()
		engine := coordination.New(di.EngineConfig(cfg),
			coordination.WithLogger(applogger.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level)),
		)
		defer engine.Close()

		res, err := engine.Coordinate(cmd.Context(), req.Events, req.CoordinationMode)
		if err != nil {
			return fmt.Errorf("coordinate: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	coordinateCmd.Flags().StringVarP(&coordinateFile, "file", "f", "", "JSON file with events, or - for stdin")
	coordinateCmd.Flags().StringVar(&coordinateMode, "mode", "", "Coordination mode override")
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return b, nil
}

func decodeRequest(raw []byte) (models.CoordinateRequest, error) {
	var req models.CoordinateRequest
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &req.Events); err != nil {
			return req, fmt.Errorf("decode events: %w", err)
		}
		return req, nil
	}
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return req, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}
