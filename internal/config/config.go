// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() builds a Config with defaults; Load layers file and env on top.
// - Config is immutable after Load and is passed into constructors.
// - Errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// APIPrefix is mounted in front of every API route, e.g. "/api/v1".
	APIPrefix string `koanf:"api_prefix"`

	// WorkerCount sets the number of keyed rating workers.
	WorkerCount int `koanf:"worker_count"`

	// WorkerQueueSize bounds the per-worker delivery buffer.
	WorkerQueueSize int `koanf:"worker_queue_size"`

	// DedupeSize bounds the redelivery guard (event ids remembered).
	DedupeSize int `koanf:"dedupe_size"`

	// DefaultPlayerScore is folded into a rating when a player is created.
	DefaultPlayerScore int `koanf:"default_player_score"`

	// ShutdownTimeout bounds the graceful drain of every component.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	Broker Broker `koanf:"broker"`
	Store  Store  `koanf:"store"`
}

// Broker holds the NATS/JetStream connection and topology settings.
type Broker struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// URL overrides Host/Port when set, e.g. "nats://a:4222,nats://b:4222".
	URL string `koanf:"url"`

	// Heartbeat is the client ping interval used to detect dead connections.
	Heartbeat time.Duration `koanf:"heartbeat"`

	// ConnectionAttempts is the client-side reconnect budget per connection.
	ConnectionAttempts int `koanf:"connection_attempts"`

	ConnectionTimeout time.Duration `koanf:"connection_timeout"`

	// RetryDelay is the fixed wait between bring-up attempts of the publisher and consumer.
	RetryDelay time.Duration `koanf:"retry_delay"`

	Stream        string        `koanf:"stream"`
	SubjectPrefix string        `koanf:"subject_prefix"`
	Consumer      string        `koanf:"consumer"`
	AckWait       time.Duration `koanf:"ack_wait"`
	MaxDeliver    int           `koanf:"max_deliver"`
}

// Store selects and configures the rating store.
type Store struct {
	Driver         string        `koanf:"driver"`
	DSN            string        `koanf:"dsn"`
	Migrate        bool          `koanf:"migrate"`
	MaxConns       int32         `koanf:"max_conns"`
	QueryTimeout   time.Duration `koanf:"query_timeout"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		APIPrefix:          "",
		WorkerCount:        runtime.NumCPU(),
		WorkerQueueSize:    1024,
		DedupeSize:         100_000,
		DefaultPlayerScore: 5,
		ShutdownTimeout:    10 * time.Second,
		Broker: Broker{
			Host:               "localhost",
			Port:               4222,
			Heartbeat:          60 * time.Second,
			ConnectionAttempts: 3,
			ConnectionTimeout:  5 * time.Second,
			RetryDelay:         5 * time.Second,
			Stream:             "TALLY_EVENTS",
			SubjectPrefix:      "tally.events",
			Consumer:           "tally-ratings",
			AckWait:            30 * time.Second,
			MaxDeliver:         -1,
		},
		Store: Store{
			Driver:         StoreMemory,
			Migrate:        true,
			MaxConns:       10,
			QueryTimeout:   5 * time.Second,
			ConnectTimeout: 10 * time.Second,
		},
	}
}

// ServerURL returns the broker URL, built from Host and Port unless URL is set.
func (b Broker) ServerURL() string {
	if b.URL != "" {
		return b.URL
	}
	return fmt.Sprintf("nats://%s:%d", b.Host, b.Port)
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.WorkerCount <= 0:
		return invalid("worker_count must be positive")
	case c.WorkerQueueSize <= 0:
		return invalid("worker_queue_size must be positive")
	case c.DedupeSize < 0:
		return invalid("dedupe_size must not be negative")
	case c.ShutdownTimeout <= 0:
		return invalid("shutdown_timeout must be positive")
	case c.Broker.URL == "" && (c.Broker.Host == "" || c.Broker.Port <= 0):
		return invalid("broker.url or broker.host and broker.port are required")
	case c.Broker.RetryDelay <= 0:
		return invalid("broker.retry_delay must be positive")
	case c.Broker.ConnectionTimeout <= 0:
		return invalid("broker.connection_timeout must be positive")
	case c.Broker.Stream == "" || c.Broker.SubjectPrefix == "" || c.Broker.Consumer == "":
		return invalid("broker.stream, broker.subject_prefix and broker.consumer are required")
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DSN == "" {
			return invalid("store.dsn is required for the postgres driver")
		}
	default:
		return invalid(fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}
	return nil
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, reason)
}
