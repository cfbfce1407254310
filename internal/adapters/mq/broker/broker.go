// Package broker defines the contracts between the messaging adapters and a
// concrete message broker.
package broker

import (
	"context"
	"errors"
)

// ErrConnection marks a failure of the broker connection itself, as opposed
// to a failure of one message.
var ErrConnection = errors.New("broker connection")

// Delivery is one inbound message. Exactly one of Ack, Nak or Term should be
// called for it.
type Delivery interface {
	Data() []byte
	Subject() string
	// Attempt is 1 for the first delivery and grows on redelivery.
	Attempt() uint64
	// Ack settles the message as processed.
	Ack() error
	// Nak asks the broker to redeliver the message.
	Nak() error
	// Term tells the broker never to redeliver the message.
	Term() error
}

// DeliveryHandler receives deliveries in broker order. It may block to apply
// backpressure.
type DeliveryHandler func(d Delivery)

// Subscription is a live stream of deliveries on one connection.
type Subscription interface {
	// Done is closed once the subscription ends, after Close or when the
	// connection is lost for good.
	Done() <-chan struct{}
	// Err explains why Done was closed. It is nil after Close.
	Err() error
	Close() error
}

// Subscriber opens subscriptions on the inbound stream.
type Subscriber interface {
	Subscribe(ctx context.Context, h DeliveryHandler) (Subscription, error)
}

// Sender writes messages to the broker over one connection.
type Sender interface {
	// Send publishes body on subject. msgID, when not empty, lets the broker
	// drop duplicates.
	Send(ctx context.Context, subject string, body []byte, msgID string) error
	Close() error
}

// Dialer opens sender connections.
type Dialer interface {
	DialSender(ctx context.Context) (Sender, error)
}
