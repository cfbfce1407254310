// Package dispatch routes decoded events to the handler for their type.
package dispatch

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/logger"
)

// Handler processes one event. A nil return means the event may be acked.
type Handler func(ctx context.Context, e model.Envelope) error

// Dispatcher holds the event_type -> handler table.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[model.EventType]Handler
	logger   logger.Logger
}

// New creates an empty dispatcher.
func New(l logger.Logger) *Dispatcher {
	if l == nil {
		l = logger.Get().Named("dispatch")
	}
	return &Dispatcher{handlers: make(map[model.EventType]Handler), logger: l}
}

// Register binds h to t, replacing any previous handler.
func (d *Dispatcher) Register(t model.EventType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = h
}

// Dispatch runs the handler for e. Events without a handler are logged and
// discarded with a nil error.
func (d *Dispatcher) Dispatch(ctx context.Context, e model.Envelope) error {
	d.mu.RLock()
	h, ok := d.handlers[e.EventType]
	d.mu.RUnlock()

	if !ok {
		d.logger.Info(ctx, "event consumed but not handled",
			logger.String("event_type", string(e.EventType)),
			logger.String("event_id", e.EventID),
		)
		return nil
	}
	return h(ctx, e)
}

// Types lists the registered event types.
func (d *Dispatcher) Types() []model.EventType {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.EventType, 0, len(d.handlers))
	for t := range d.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
