package service

import (
	"github.com/okian/tally/internal/adapters/mq/broker"
	"github.com/okian/tally/internal/adapters/mq/publisher"
	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRepository uses repo instead of opening the configured store.
// The service closes it on Stop.
func WithRepository(repo repository.Repository) Option {
	return func(s *Service) {
		s.repo = repo
	}
}

// WithBroker replaces the NATS connection with custom ends. subject may be
// nil to derive subjects from the configured prefix.
func WithBroker(dialer broker.Dialer, subscriber broker.Subscriber, subject publisher.SubjectFunc) Option {
	return func(s *Service) {
		s.dialer = dialer
		s.subscriber = subscriber
		s.subject = subject
	}
}
