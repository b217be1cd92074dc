package clickhouse

import (
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
)

func TestOptionsNative(t *testing.T) {
	cfg := clientConfig{}
	for _, opt := range []ClientOption{
		WithHost("ch"),
		WithPort(9000),
		WithDatabase("fincoord"),
		WithCredentials("default", ""),
		WithTimeouts(5*time.Second, 0, 0),
	} {
		opt(&cfg)
	}
	o := cfg.options()
	assert.Equal(t, clickhouse.Native, o.Protocol)
	assert.Equal(t, []string{"ch:9000"}, o.Addr)
	assert.Equal(t, "fincoord", o.Auth.Database)
	assert.Equal(t, 5*time.Second, o.DialTimeout)
	assert.Empty(t, o.Settings)
}

func TestOptionsHTTPWithSettings(t *testing.T) {
	cfg := clientConfig{host: "ch", port: 8123}
	WithHTTP(true)(&cfg)
	WithMaxExecutionTime(30500 * time.Millisecond)(&cfg)
	WithAsyncInsert(true, true)(&cfg)

	o := cfg.options()
	assert.Equal(t, clickhouse.HTTP, o.Protocol)
	assert.Equal(t, clickhouse.Settings{
		"max_execution_time":    30,
		"async_insert":          1,
		"wait_for_async_insert": 1,
	}, o.Settings)
}

func TestAsyncWaitNeedsAsyncInsert(t *testing.T) {
	cfg := clientConfig{host: "ch", port: 9000}
	WithAsyncInsert(false, true)(&cfg)
	assert.NotContains(t, cfg.options().Settings, "wait_for_async_insert")
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient()
	assert.Error(t, err)
}
