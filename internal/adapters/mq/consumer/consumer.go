// Package consumer turns broker deliveries into handled domain events. A
// delivery is acked only after its handler succeeds, nacked when the handler
// fails transiently, and terminated when the message itself is bad.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/tally/internal/adapters/mq/broker"
	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

const defaultRetryDelay = 5 * time.Second

// Sentinel errors for Start and Stop.
var (
	ErrRunning    = errors.New("consumer already running")
	ErrNotRunning = errors.New("consumer not running")
	ErrClosed     = errors.New("consumer closed")
)

// Handler processes one decoded event.
type Handler func(ctx context.Context, e model.Envelope) error

// Runner executes work for a routing key. Work for one key must run in
// submission order.
type Runner interface {
	Submit(ctx context.Context, key string, task func(ctx context.Context)) error
}

// inline runs tasks on the delivery goroutine.
type inline struct{}

func (inline) Submit(ctx context.Context, _ string, task func(ctx context.Context)) error {
	task(ctx)
	return nil
}

// Consumer keeps one subscription alive, reconnecting with a fixed delay
// for as long as it runs.
type Consumer struct {
	subscriber broker.Subscriber
	handler    Handler
	runner     Runner
	retryDelay time.Duration
	logger     logger.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
	connected bool
}

// New creates a stopped consumer.
func New(subscriber broker.Subscriber, handler Handler, opts ...Option) *Consumer {
	c := &Consumer{
		subscriber: subscriber,
		handler:    handler,
		runner:     inline{},
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("consumer")
	}
	return c
}

// Start begins consuming in the background. The loop outlives ctx; Stop or
// Close ends it. A ctx that is already done is refused.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.cancel != nil {
		return ErrRunning
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done)
	c.logger.Info(ctx, "consumer started")
	return nil
}

// Stop ends the consume loop and waits for it, bounded by ctx. The consumer
// can be started again.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return ErrNotRunning
	}

	cancel()
	select {
	case <-done:
		c.logger.Info(ctx, "consumer stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop consumer: %w", ctx.Err())
	}
}

// Close stops the consumer for good. It is idempotent.
func (c *Consumer) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.Stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return nil
}

// Running reports whether the consume loop is active.
func (c *Consumer) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Connected reports whether a subscription is currently live.
func (c *Consumer) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Consumer) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
	metrics.UpdateConsumerConnected(v)
}

func (c *Consumer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.setConnected(false)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			metrics.RecordConsumerReconnect()
		}
		sub, err := c.subscriber.Subscribe(ctx, func(d broker.Delivery) { c.receive(ctx, d) })
		if err != nil {
			c.logger.Warn(ctx, "broker unavailable, retrying",
				logger.Duration("retry_in", c.retryDelay),
				logger.Error(err),
			)
			if !c.wait(ctx) {
				return
			}
			continue
		}

		c.setConnected(true)
		c.logger.Info(ctx, "consumer subscribed")

		select {
		case <-ctx.Done():
			_ = sub.Close()
			return
		case <-sub.Done():
			c.setConnected(false)
			_ = sub.Close()
			c.logger.Warn(ctx, "subscription lost, reconnecting",
				logger.Duration("retry_in", c.retryDelay),
				logger.Error(sub.Err()),
			)
			if !c.wait(ctx) {
				return
			}
		}
	}
}

func (c *Consumer) wait(ctx context.Context) bool {
	select {
	case <-time.After(c.retryDelay):
		return true
	case <-ctx.Done():
		return false
	}
}

// receive decodes d and hands it to the runner under its routing key.
func (c *Consumer) receive(ctx context.Context, d broker.Delivery) {
	e, err := model.Decode(d.Data())
	if err != nil {
		metrics.RecordDeliveryReceived("unknown")
		c.logger.Error(ctx, "message not decodable, dropping",
			logger.String("subject", d.Subject()),
			logger.Error(err),
		)
		c.settle(ctx, d, "term", d.Term)
		return
	}
	metrics.RecordDeliveryReceived(string(e.EventType))

	if err := c.runner.Submit(ctx, e.RoutingKey(), func(taskCtx context.Context) {
		c.process(taskCtx, ctx, d, e)
	}); err != nil {
		c.logger.Warn(ctx, "delivery not scheduled", logger.String("event_id", e.EventID), logger.Error(err))
		c.settle(ctx, d, "nak", d.Nak)
	}
}

// process runs the handler. runCtx is the consume loop's context; once it
// is done the delivery is handed back instead of handled.
func (c *Consumer) process(taskCtx, runCtx context.Context, d broker.Delivery, e model.Envelope) {
	if runCtx.Err() != nil {
		c.settle(taskCtx, d, "nak", d.Nak)
		return
	}

	start := time.Now()
	err := c.handler(runCtx, e)
	metrics.RecordHandleLatency(float64(time.Since(start).Microseconds()) / 1000)

	switch {
	case err == nil:
		c.settle(taskCtx, d, "ack", d.Ack)
	case model.IsPermanent(err):
		c.logger.Error(taskCtx, "event rejected",
			logger.String("event_id", e.EventID),
			logger.String("event_type", string(e.EventType)),
			logger.Error(err),
		)
		c.settle(taskCtx, d, "term", d.Term)
	default:
		c.logger.Error(taskCtx, "event handling failed, requeueing",
			logger.String("event_id", e.EventID),
			logger.String("event_type", string(e.EventType)),
			logger.Int64("attempt", int64(d.Attempt())),
			logger.Error(err),
		)
		c.settle(taskCtx, d, "nak", d.Nak)
	}
}

func (c *Consumer) settle(ctx context.Context, d broker.Delivery, outcome string, fn func() error) {
	metrics.RecordDeliveryOutcome(outcome)
	if err := fn(); err != nil {
		c.logger.Warn(ctx, "settle failed", logger.String("outcome", outcome), logger.Error(err))
	}
}
