package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	xutil "FinCoord/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RequestTimeout  time.Duration `yaml:"request_timeout" default:"5s"`
		BodyLimit       string        `yaml:"body_limit" default:"4M"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Coordination struct {
		DefaultMode            string        `yaml:"default_mode" default:"BALANCED"`
		EventTTL               time.Duration `yaml:"event_ttl" default:"1h"`
		EvictionInterval       time.Duration `yaml:"eviction_interval" default:"1m"`
		MaxStoredEvents        int           `yaml:"max_stored_events" default:"5000"`
		MaxActiveEvents        int           `yaml:"max_active_events" default:"200"`
		DetectionTimeout       time.Duration `yaml:"detection_timeout" default:"300ms"`
		DetectionWorkers       int           `yaml:"detection_workers" default:"8"`
		ChainTimeout           time.Duration `yaml:"chain_timeout" default:"300ms"`
		MaxChainLength         int           `yaml:"max_chain_length" default:"8"`
		MaxChainNodes          int           `yaml:"max_chain_nodes" default:"50"`
		MaxChains              int           `yaml:"max_chains" default:"100"`
		MaxRelations           int           `yaml:"max_relations" default:"10000"`
		RelationWindow         time.Duration `yaml:"relation_window" default:"24h"`
		MinCompositeConfidence float64       `yaml:"min_composite_confidence" default:"0.4"`
		CompositeMethod        string        `yaml:"composite_method" default:"WEIGHTED_AVERAGE"`
		TimeSeparationOffset   time.Duration `yaml:"time_separation_offset" default:"4h"`
		HistorySize            int           `yaml:"history_size" default:"100"`
		MaxActiveSchedules     int           `yaml:"max_active_schedules" default:"20"`
		MaxPendingConflicts    int           `yaml:"max_pending_conflicts" default:"500"`
		MaxRetryAttempts       int           `yaml:"max_retry_attempts" default:"3"`
		ResultCacheTTL         time.Duration `yaml:"result_cache_ttl" default:"1h"`
	} `yaml:"coordination"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
		RequestTopic string   `yaml:"request_topic" default:"coordination.requests"`
		ResultTopic  string   `yaml:"result_topic" default:"coordination.results"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"20ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID     string        `yaml:"group_id" default:"fincoord"`
			OffsetReset string        `yaml:"offset_reset" default:"earliest"`
			Workers     int           `yaml:"workers" default:"4"`
			BufferSize  int           `yaml:"buffer_size" default:"256"`
			RetryMax    int           `yaml:"retry_max" default:"3"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic    string        `yaml:"dlq_topic" default:"coordination.requests.dlq"`
			MinBytes    int           `yaml:"min_bytes" default:"1"`
			MaxBytes    int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
		Logs struct {
			Enabled  bool          `yaml:"enabled"`
			Topic    string        `yaml:"topic" default:"fincoord.logs"`
			Interval time.Duration `yaml:"interval" default:"30s"`
		} `yaml:"logs"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"20"`
		Prefix   string `yaml:"prefix" default:"fincoord"`
	} `yaml:"redis"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"fincoord"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Webhook struct {
		URL        string        `yaml:"url"`
		Timeout    time.Duration `yaml:"timeout" default:"5s"`
		MaxRetries int           `yaml:"max_retries" default:"3"`
	} `yaml:"webhook"`
	WebSocket struct {
		Enabled      bool          `yaml:"enabled"`
		SendBuffer   int           `yaml:"send_buffer" default:"16"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"websocket"`
	Pipeline struct {
		BufferSize int           `yaml:"buffer_size" default:"1000"`
		RetryMin   time.Duration `yaml:"retry_min" default:"500ms"`
		RetryMax   time.Duration `yaml:"retry_max" default:"30s"`
	} `yaml:"pipeline"`
	RateLimit struct {
		Enabled      bool    `yaml:"enabled"`
		Capacity     float64 `yaml:"capacity" default:"20"`
		RefillPerSec float64 `yaml:"refill_per_sec" default:"10"`
	} `yaml:"rate_limit"`
}

// Default returns a configuration populated from the default tags only.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file. Keys missing from the file
// keep their default values.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// An empty path loads the defaults.
func LoadWithEnv(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	if path == "" {
		c = Default()
	} else if c, err = Load(path); err != nil {
		return nil, err
	}

	c.ApplyEnv(os.LookupEnv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get("FINCOORD_ENV"); ok {
		c.Environment = v
	}
	if v, ok := get("FINCOORD_PORT"); ok {
		c.Server.Port = xutil.ParseIntDefault(v, c.Server.Port)
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := get("COORDINATION_MODE"); ok {
		c.Coordination.DefaultMode = strings.ToUpper(v)
	}
	if v, ok := get("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v, ok := get("REDIS_ADDR"); ok {
		host, port, found := strings.Cut(v, ":")
		c.Redis.Host = host
		if found {
			c.Redis.Port = xutil.ParseIntDefault(port, c.Redis.Port)
		}
		c.Redis.Enabled = true
	}
	if v, ok := get("CLICKHOUSE_HOST"); ok {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v, ok := get("FINCOORD_WEBHOOK_URL"); ok {
		c.Webhook.URL = v
	}
}

var validModes = map[string]struct{}{
	"CONSERVATIVE": {},
	"AGGRESSIVE":   {},
	"BALANCED":     {},
	"ADAPTIVE":     {},
}

var validMethods = map[string]struct{}{
	"WEIGHTED_AVERAGE":   {},
	"HIGHEST_CONFIDENCE": {},
	"MAJORITY_DIRECTION": {},
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if _, ok := validModes[strings.ToUpper(c.Coordination.DefaultMode)]; !ok {
		return fmt.Errorf("coordination.default_mode must be one of CONSERVATIVE, AGGRESSIVE, BALANCED, ADAPTIVE, got '%s'", c.Coordination.DefaultMode)
	}
	if _, ok := validMethods[strings.ToUpper(c.Coordination.CompositeMethod)]; !ok {
		return fmt.Errorf("coordination.composite_method '%s' is not supported", c.Coordination.CompositeMethod)
	}
	if c.Coordination.MaxChainLength < 3 {
		return fmt.Errorf("coordination.max_chain_length must be at least 3")
	}
	if c.Coordination.MaxActiveEvents <= 0 || c.Coordination.MaxStoredEvents < c.Coordination.MaxActiveEvents {
		return fmt.Errorf("coordination.max_stored_events must be >= max_active_events > 0")
	}
	if c.Coordination.MinCompositeConfidence < 0 || c.Coordination.MinCompositeConfidence > 1 {
		return fmt.Errorf("coordination.min_composite_confidence must be in [0,1]")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if r := c.Kafka.Consumer.OffsetReset; r != "earliest" && r != "latest" {
		return fmt.Errorf("kafka.consumer.offset_reset must be earliest or latest, got '%s'", r)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Capacity <= 0 || c.RateLimit.RefillPerSec <= 0) {
		return fmt.Errorf("rate_limit.capacity and rate_limit.refill_per_sec must be positive")
	}
	return nil
}
