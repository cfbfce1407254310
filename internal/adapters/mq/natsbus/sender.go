package natsbus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/okian/tally/internal/adapters/mq/broker"
)

type sender struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// DialSender implements broker.Dialer. The stream is declared before the
// sender is returned.
func (b *Bus) DialSender(ctx context.Context) (broker.Sender, error) {
	nc, js, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}
	return &sender{nc: nc, js: js}, nil
}

func (s *sender) Send(ctx context.Context, subject string, body []byte, msgID string) error {
	if s.nc.IsClosed() {
		return fmt.Errorf("%w: %w", broker.ErrConnection, nats.ErrConnectionClosed)
	}
	var opts []jetstream.PublishOpt
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}
	if _, err := s.js.Publish(ctx, subject, body, opts...); err != nil {
		return classify(fmt.Errorf("publish %s: %w", subject, err))
	}
	return nil
}

func (s *sender) Close() error {
	s.nc.Close()
	return nil
}
