package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
	done    chan struct{}
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{done: make(chan struct{}, 8)}
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	p.mu.Unlock()
	p.done <- struct{}{}
	return nil
}

func TestNewWithWriterFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info").With(String("component", "engine"))

	l.Info("coordinated", Int("events", 2), Float64("effectiveness", 0.75), Bool("ok", true))
	l.Debug("hidden")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "coordinated", entry["message"])
	assert.Equal(t, "engine", entry["component"])
	assert.EqualValues(t, 2, entry["events"])
	assert.Equal(t, 0.75, entry["effectiveness"])
	assert.Equal(t, true, entry["ok"])
}

func TestCollectorAggregatesWarnings(t *testing.T) {
	pub := newCapturePublisher()
	l := NewWithWriter(&bytes.Buffer{}, "debug")
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "fincoord.logs",
		Publisher:      pub,
	})
	defer l.RemoveCollector()

	for i := 0; i < 3; i++ {
		l.Warn("sink failed", String("sink", "kafka"))
	}
	l.Error("archive down", Error(errors.New("dial tcp")))

	select {
	case <-pub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not flush")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, "fincoord.logs", pub.topic)
	require.Len(t, pub.batches, 1)
	require.Len(t, pub.batches[0], 2)

	counts := map[string]int{}
	for _, e := range pub.batches[0] {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, 3, counts["sink failed"])
	assert.Equal(t, 1, counts["archive down"])
}

func TestNopDiscards(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Error("ignored", Error(errors.New("x")))
	})
}

func TestEntryKeyIgnoresFieldOrder(t *testing.T) {
	a := entryKey("warn", "sink failed", map[string]interface{}{"sink": "kafka", "attempt": 2}, "x.go:1")
	b := entryKey("warn", "sink failed", map[string]interface{}{"attempt": 2, "sink": "kafka"}, "x.go:1")
	c := entryKey("warn", "sink failed", map[string]interface{}{"attempt": 3, "sink": "kafka"}, "x.go:1")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestErrorFieldNilIsSkipped(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info").Info("done", Error(nil), Duration("took", 1500*time.Millisecond), Strings("sinks", []string{"kafka", "websocket"}))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, hasErr := entry["error"]
	assert.False(t, hasErr)
	assert.Equal(t, []interface{}{"kafka", "websocket"}, entry["sinks"])
	assert.Contains(t, entry, "took")
}
