package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsDefaultsForMissingKeys(t *testing.T) {
	c, err := Parse([]byte(`
environment: staging
coordination:
  default_mode: ADAPTIVE
  max_chain_length: 5
kafka:
  enabled: true
  brokers: ["kafka-1:9092", "kafka-2:9092"]
metrics:
  enabled: false
`))
	require.NoError(t, err)

	assert.Equal(t, "staging", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "ADAPTIVE", c.Coordination.DefaultMode)
	assert.Equal(t, 5, c.Coordination.MaxChainLength)
	assert.Equal(t, time.Hour, c.Coordination.EventTTL)
	assert.Equal(t, 300*time.Millisecond, c.Coordination.DetectionTimeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "coordination.requests", c.Kafka.RequestTopic)
	assert.False(t, c.Metrics.Enabled)
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"mode":   "coordination:\n  default_mode: RECKLESS\n",
		"chain":  "coordination:\n  max_chain_length: 2\n",
		"caps":   "coordination:\n  max_active_events: 10\n  max_stored_events: 5\n",
		"method": "coordination:\n  composite_method: MEDIAN\n",
		"port":   "server:\n  port: 70000\n",
		"offset": "kafka:\n  consumer:\n    offset_reset: middle\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	env := map[string]string{
		"KAFKA_BROKERS":     "a:9092,b:9092",
		"REDIS_ADDR":        "cache:6380",
		"COORDINATION_MODE": "conservative",
		"LOG_LEVEL":         "debug",
		"FINCOORD_PORT":     "9090",
	}
	c.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, "cache", c.Redis.Host)
	assert.Equal(t, 6380, c.Redis.Port)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "CONSERVATIVE", c.Coordination.DefaultMode)
	assert.Equal(t, "debug", c.Logging.Level)
	assert.Equal(t, 9090, c.Server.Port)
	require.NoError(t, c.Validate())
}
