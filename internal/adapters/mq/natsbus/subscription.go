package natsbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/okian/tally/internal/adapters/mq/broker"
	"github.com/okian/tally/pkg/logger"
)

type subscription struct {
	nc *nats.Conn
	cc jetstream.ConsumeContext

	done    chan struct{}
	once    sync.Once
	closing atomic.Bool

	mu  sync.Mutex
	err error
}

func (s *subscription) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.closing.Store(true)
	if s.cc != nil {
		s.cc.Stop()
	}
	s.nc.Close()
	s.end(nil)
	return nil
}

// Subscribe implements broker.Subscriber. It declares the stream and the
// durable consumer, then feeds every message to h on the client's delivery
// goroutine.
func (b *Bus) Subscribe(ctx context.Context, h broker.DeliveryHandler) (broker.Subscription, error) {
	s := &subscription{done: make(chan struct{})}
	nc, js, err := b.connect(ctx, nats.ClosedHandler(func(*nats.Conn) {
		if !s.closing.Load() {
			s.end(fmt.Errorf("%w: connection closed", broker.ErrConnection))
		}
	}))
	if err != nil {
		return nil, err
	}
	s.nc = nc

	cons, err := js.CreateOrUpdateConsumer(ctx, b.cfg.Stream, jetstream.ConsumerConfig{
		Name:          b.cfg.Consumer,
		Durable:       b.cfg.Consumer,
		FilterSubject: b.cfg.wildcard(),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       b.cfg.AckWait,
		MaxDeliver:    b.cfg.MaxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, classify(fmt.Errorf("declare consumer %s: %w", b.cfg.Consumer, err))
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		h(delivery{msg: msg})
	}, jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
		if errors.Is(err, jetstream.ErrConsumerDeleted) || errors.Is(err, jetstream.ErrConsumerNotFound) {
			s.end(fmt.Errorf("%w: %w", broker.ErrConnection, err))
			return
		}
		b.logger.Warn(ctx, "consume error", logger.Error(err))
	}))
	if err != nil {
		nc.Close()
		return nil, classify(fmt.Errorf("consume %s: %w", b.cfg.Consumer, err))
	}
	s.cc = cc
	return s, nil
}

type delivery struct {
	msg jetstream.Msg
}

func (d delivery) Data() []byte    { return d.msg.Data() }
func (d delivery) Subject() string { return d.msg.Subject() }
func (d delivery) Ack() error      { return d.msg.Ack() }
func (d delivery) Nak() error      { return d.msg.Nak() }
func (d delivery) Term() error     { return d.msg.Term() }

func (d delivery) Attempt() uint64 {
	meta, err := d.msg.Metadata()
	if err != nil {
		return 1
	}
	return meta.NumDelivered
}
