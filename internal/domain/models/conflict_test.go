package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeLabel(t *testing.T) {
	cases := map[string]string{
		"adaptive":      "ADAPTIVE",
		" Aggressive ":  "AGGRESSIVE",
		"":              "DEFAULT",
		"turbo":         "UNKNOWN",
		"whatever-mode": "UNKNOWN",
	}
	for in, want := range cases {
		assert.Equal(t, want, ModeLabel(in), in)
	}
}

func TestEventPayloadKeepsUnparseableTime(t *testing.T) {
	var batch []EventPayload
	err := json.Unmarshal([]byte(`[
		{"id":"a","event_time":"2026-01-02T03:04:05Z"},
		{"id":"b","event_time":1767323045000},
		{"id":"c","event_time":"not-a-time"},
		{"id":"d","event_time":null}
	]`), &batch)
	require.NoError(t, err)
	require.Len(t, batch, 4)

	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), batch[0].EventTime.Time)
	assert.False(t, batch[0].EventTime.Malformed())
	assert.Equal(t, int64(1767323045), batch[1].EventTime.Unix())

	assert.True(t, batch[2].EventTime.Malformed())
	assert.Equal(t, "not-a-time", batch[2].EventTime.Raw)

	assert.True(t, batch[3].EventTime.IsZero())
	assert.False(t, batch[3].EventTime.Malformed())

	out, err := json.Marshal(batch[2].EventTime)
	require.NoError(t, err)
	assert.JSONEq(t, `"not-a-time"`, string(out))
}
