package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCoord/internal/domain/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgHandle = nil
	coordinateFile, coordinateMode, logLevel = "", "", ""
	t.Cleanup(func() { cfgHandle = nil })

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "version: dev")
	assert.Contains(t, out, "commit: none")
}

func TestCoordinateFromFile(t *testing.T) {
	at := time.Now().UTC().Add(2 * time.Hour)
	events := []map[string]interface{}{
		{"id": "A", "severity": "HIGH", "direction": "BULLISH", "event_time": at.Format(time.RFC3339), "confidence": 0.8, "expected_impact": 0.4, "affected_symbols": []string{"BTC"}},
		{"id": "B", "severity": "MEDIUM", "direction": "BEARISH", "event_time": at.Add(15 * time.Minute).Format(time.RFC3339), "confidence": 0.7, "expected_impact": 0.4, "affected_symbols": []string{"btc"}},
	}
	b, err := json.Marshal(events)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, os.WriteFile(path, b, 0o644))

	out, err := execute(t, "coordinate", "--file", path, "--mode", "AGGRESSIVE", "--log-level", "error")
	require.NoError(t, err)

	var res models.CoordinationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, models.ModeAggressive, res.CoordinationMode)
	assert.ElementsMatch(t, []string{"A", "B"}, res.ProcessedEventIDs)
	assert.NotEmpty(t, res.ConflictsDetected)
}

func TestCoordinateRequiresFile(t *testing.T) {
	_, err := execute(t, "coordinate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--file")
}

func TestDecodeRequest(t *testing.T) {
	req, err := decodeRequest([]byte(`  [{"id":"x","severity":"LOW","direction":"NEUTRAL","event_time":"2025-03-14T12:00:00Z"}]`))
	require.NoError(t, err)
	require.Len(t, req.Events, 1)
	assert.Equal(t, "x", req.Events[0].ID)

	req, err = decodeRequest([]byte(`{"request_id":"r1","coordination_mode":"CONSERVATIVE","events":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "r1", req.RequestID)
	assert.Equal(t, "CONSERVATIVE", req.CoordinationMode)

	_, err = decodeRequest([]byte(`{"events":`))
	assert.Error(t, err)
}
