// Package natsbus implements the broker contracts on NATS JetStream. Events
// live in one file-backed stream; ratings are fed by a durable pull consumer
// with explicit acks.
package natsbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/okian/tally/internal/adapters/mq/broker"
	"github.com/okian/tally/pkg/logger"
)

// Bus dials NATS connections for senders and subscriptions.
type Bus struct {
	cfg    Config
	logger logger.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a bus. No connection is made until DialSender or Subscribe.
func New(cfg Config, opts ...Option) *Bus {
	b := &Bus{cfg: cfg}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.Get().Named("natsbus")
	}
	return b
}

// Config returns the bus configuration.
func (b *Bus) Config() Config {
	return b.cfg
}

func (b *Bus) connect(ctx context.Context, extra ...nats.Option) (*nats.Conn, jetstream.JetStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	opts := []nats.Option{
		nats.Name(b.cfg.Name),
		nats.Timeout(b.cfg.ConnectTimeout),
		nats.PingInterval(b.cfg.Heartbeat),
		nats.MaxPingsOutstanding(2),
		nats.MaxReconnects(b.cfg.MaxReconnects),
		nats.ReconnectWait(b.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn(ctx, "nats disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.logger.Info(ctx, "nats reconnected", logger.String("url", nc.ConnectedUrl()))
		}),
	}
	opts = append(opts, extra...)

	nc, err := nats.Connect(b.cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: connect %s: %w", broker.ErrConnection, b.cfg.URL, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("%w: jetstream: %w", broker.ErrConnection, err)
	}
	if err := b.ensureStream(ctx, js); err != nil {
		nc.Close()
		return nil, nil, err
	}
	return nc, js, nil
}

func (b *Bus) ensureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      b.cfg.Stream,
		Subjects:  []string{b.cfg.wildcard()},
		Storage:   b.cfg.Storage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    b.cfg.MaxAge,
	})
	if err != nil {
		return classify(fmt.Errorf("declare stream %s: %w", b.cfg.Stream, err))
	}
	return nil
}

// classify tags errors that mean the connection, not the message, failed.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, nats.ErrConnectionDraining),
		errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrNoResponders),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, jetstream.ErrNoStreamResponse),
		errors.Is(err, context.DeadlineExceeded):
		if errors.Is(err, broker.ErrConnection) {
			return err
		}
		return fmt.Errorf("%w: %w", broker.ErrConnection, err)
	}
	return err
}
