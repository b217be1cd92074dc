package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClientOption configures Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	host, database     string
	user, password     string
	port               int
	maxOpen, maxIdle   int
	connLifetime       time.Duration
	dial, read, write  time.Duration
	http               bool
	asyncInsert, await bool
	maxExec            time.Duration
}

func WithHost(host string) ClientOption { return func(c *clientConfig) { c.host = host } }

func WithPort(port int) ClientOption { return func(c *clientConfig) { c.port = port } }

func WithDatabase(db string) ClientOption { return func(c *clientConfig) { c.database = db } }

func WithCredentials(user, password string) ClientOption {
	return func(c *clientConfig) { c.user, c.password = user, password }
}

func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(c *clientConfig) { c.maxOpen, c.maxIdle = maxOpen, maxIdle }
}

// WithTimeouts sets dial and read timeouts on the connection. write bounds InitSchema statements.
func WithTimeouts(dial, read, write time.Duration) ClientOption {
	return func(c *clientConfig) { c.dial, c.read, c.write = dial, read, write }
}

// WithHTTP switches from the native protocol to HTTP.
func WithHTTP(on bool) ClientOption { return func(c *clientConfig) { c.http = on } }

// WithAsyncInsert enables server side insert buffering; wait makes inserts block until flushed.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *clientConfig) { c.asyncInsert, c.await = enabled, wait }
}

// WithMaxExecutionTime caps every query on the server; rounded down to whole seconds.
func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.maxExec = d }
}

// options translates the config into driver options.
func (c clientConfig) options() *clickhouse.Options {
	proto := clickhouse.Native
	if c.http {
		proto = clickhouse.HTTP
	}
	settings := clickhouse.Settings{}
	if secs := int(c.maxExec / time.Second); secs > 0 {
		settings["max_execution_time"] = secs
	}
	if c.asyncInsert {
		settings["async_insert"] = 1
		if c.await {
			settings["wait_for_async_insert"] = 1
		}
	}
	return &clickhouse.Options{
		Protocol: proto,
		Addr:     []string{net.JoinHostPort(c.host, strconv.Itoa(c.port))},
		Auth: clickhouse.Auth{
			Database: c.database,
			Username: c.user,
			Password: c.password,
		},
		Settings:        settings,
		DialTimeout:     c.dial,
		ReadTimeout:     c.read,
		MaxOpenConns:    c.maxOpen,
		MaxIdleConns:    c.maxIdle,
		ConnMaxLifetime: c.connLifetime,
	}
}

// Client owns the ClickHouse connection pool shared by repositories.
type Client struct {
	db           *sql.DB
	writeTimeout time.Duration
}

// NewClient opens the pool and pings the server.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := clientConfig{
		port:         9000,
		database:     "default",
		user:         "default",
		maxOpen:      10,
		maxIdle:      5,
		connLifetime: 5 * time.Minute,
		dial:         5 * time.Second,
		read:         10 * time.Second,
		write:        10 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.host == "" {
		return nil, errors.New("clickhouse: host is required")
	}

	db := clickhouse.OpenDB(cfg.options())
	ctx, cancel := context.WithTimeout(context.Background(), cfg.dial+time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s:%d: %w", cfg.host, cfg.port, err)
	}
	return &Client{db: db, writeTimeout: cfg.write}, nil
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Health(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// InitSchema runs idempotent DDL statements in order and stops at the first failure.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		sctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
		_, err := c.db.ExecContext(sctx, stmt)
		cancel()
		if err != nil {
			return fmt.Errorf("clickhouse schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
