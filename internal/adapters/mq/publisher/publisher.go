// Package publisher sends domain events to the broker from a single
// goroutine. Callers only enqueue, so a slow or absent broker never stalls
// the rating path.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/tally/internal/adapters/mq/broker"
	"github.com/okian/tally/internal/adapters/mq/queue"
	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

const defaultRetryDelay = 5 * time.Second

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher closed")

// SubjectFunc maps an event type to its broker subject.
type SubjectFunc func(model.EventType) string

// Publisher owns an unbounded outbound queue and the sender connection.
type Publisher struct {
	dialer     broker.Dialer
	subject    SubjectFunc
	queue      *queue.FIFO[model.Envelope]
	retryDelay time.Duration
	logger     logger.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	// only touched by the run goroutine
	sender broker.Sender
}

// New creates a publisher. Nothing is sent until Start.
func New(dialer broker.Dialer, subject SubjectFunc, opts ...Option) *Publisher {
	p := &Publisher{
		dialer:     dialer,
		subject:    subject,
		queue:      queue.New[model.Envelope](queue.WithSizeObserver(metrics.UpdatePublisherQueueSize)),
		retryDelay: defaultRetryDelay,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("publisher")
	}
	return p
}

// Start launches the sender goroutine. It outlives ctx; only Close stops it.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.queue.IsClosed() {
		return
	}
	p.started = true
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	go p.run(runCtx)
}

// Publish enqueues e and returns at once.
func (p *Publisher) Publish(_ context.Context, e model.Envelope) error {
	if err := p.queue.Push(e); err != nil {
		return ErrClosed
	}
	return nil
}

// Pending returns the number of events waiting to be sent.
func (p *Publisher) Pending() int {
	return p.queue.Len()
}

// Close stops intake and waits for the queue to drain. If ctx ends first the
// rest of the queue is dropped and the context error is returned.
func (p *Publisher) Close(ctx context.Context) error {
	_ = p.queue.Close()

	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		p.dropRemaining(ctx, "closed")
		return nil
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		p.cancel()
		<-p.done
		p.dropRemaining(ctx, "closed")
		return fmt.Errorf("publisher drain: %w", ctx.Err())
	}
}

func (p *Publisher) dropRemaining(ctx context.Context, reason string) {
	left := p.queue.Drain()
	if len(left) == 0 {
		return
	}
	for range left {
		metrics.RecordEventDropped(reason)
	}
	p.logger.Warn(ctx, "events dropped on close", logger.Int("count", len(left)))
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.done)
	defer p.closeSender()

	p.ensureSender(ctx)
	for {
		e, err := p.queue.Pop(ctx)
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			metrics.RecordEventDropped("closed")
			continue
		}
		p.deliver(ctx, e)
	}
}

// deliver sends one event. A connection failure gets one reconnect and one
// retry; anything else drops the event.
func (p *Publisher) deliver(ctx context.Context, e model.Envelope) {
	start := time.Now()
	body, err := model.Encode(e)
	if err != nil {
		metrics.RecordEventDropped("encode")
		p.logger.Error(ctx, "event not encodable", logger.String("event_id", e.EventID), logger.Error(err))
		return
	}
	subject := p.subject(e.EventType)

	for attempt := 1; attempt <= 2; attempt++ {
		snd := p.ensureSender(ctx)
		if snd == nil {
			metrics.RecordEventDropped("closed")
			return
		}
		err = snd.Send(ctx, subject, body, e.EventID)
		if err == nil {
			metrics.RecordEventPublished(string(e.EventType))
			metrics.RecordPublishLatency(float64(time.Since(start).Microseconds()) / 1000)
			return
		}
		if !errors.Is(err, broker.ErrConnection) {
			metrics.RecordEventDropped("rejected")
			p.logger.Error(ctx, "event rejected by broker",
				logger.String("event_id", e.EventID),
				logger.String("subject", subject),
				logger.Error(err),
			)
			return
		}
		p.logger.Warn(ctx, "publish failed on connection, reconnecting",
			logger.String("event_id", e.EventID),
			logger.Int("attempt", attempt),
			logger.Error(err),
		)
		p.closeSender()
		metrics.RecordPublisherReconnect()
	}

	metrics.RecordEventDropped("connection")
	p.logger.Error(ctx, "event dropped after retry",
		logger.String("event_id", e.EventID),
		logger.String("event_type", string(e.EventType)),
		logger.Error(err),
	)
}

// ensureSender dials until it succeeds or ctx ends, waiting retryDelay
// between attempts. It returns nil only when ctx is done.
func (p *Publisher) ensureSender(ctx context.Context) broker.Sender {
	for p.sender == nil {
		snd, err := p.dialer.DialSender(ctx)
		if err == nil {
			p.sender = snd
			p.logger.Info(ctx, "publisher connected")
			break
		}
		p.logger.Warn(ctx, "broker unavailable, retrying",
			logger.Duration("retry_in", p.retryDelay),
			logger.Error(err),
		)
		select {
		case <-time.After(p.retryDelay):
		case <-ctx.Done():
			return nil
		}
	}
	return p.sender
}

func (p *Publisher) closeSender() {
	if p.sender == nil {
		return
	}
	_ = p.sender.Close()
	p.sender = nil
}
