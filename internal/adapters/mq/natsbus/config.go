package natsbus

import (
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/okian/tally/internal/domain/model"
)

// Config describes the connection and the stream topology.
type Config struct {
	URL  string
	Name string

	ConnectTimeout time.Duration
	// Heartbeat is the client ping interval. Two missed pongs drop the connection.
	Heartbeat time.Duration
	// MaxReconnects bounds the client's own reconnect attempts before the
	// connection is declared lost.
	MaxReconnects int
	ReconnectWait time.Duration

	Stream        string
	SubjectPrefix string
	Consumer      string
	AckWait       time.Duration
	MaxDeliver    int
	MaxAge        time.Duration
	Storage       jetstream.StorageType
}

// DefaultConfig returns a config for a local server.
func DefaultConfig() Config {
	return Config{
		URL:            "nats://localhost:4222",
		Name:           "tally",
		ConnectTimeout: 5 * time.Second,
		Heartbeat:      60 * time.Second,
		MaxReconnects:  3,
		ReconnectWait:  5 * time.Second,
		Stream:         "TALLY_EVENTS",
		SubjectPrefix:  "tally.events",
		Consumer:       "tally-ratings",
		AckWait:        30 * time.Second,
		MaxDeliver:     -1,
		MaxAge:         7 * 24 * time.Hour,
		Storage:        jetstream.FileStorage,
	}
}

// Subject is the subject events of type t are published on.
func (c Config) Subject(t model.EventType) string {
	return c.SubjectPrefix + "." + string(t)
}

func (c Config) wildcard() string {
	return c.SubjectPrefix + ".>"
}
