// Package service wires the rating pipeline together and implements the
// operations the HTTP API depends on.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/tally/internal/adapters/mq/broker"
	"github.com/okian/tally/internal/adapters/mq/consumer"
	"github.com/okian/tally/internal/adapters/mq/natsbus"
	"github.com/okian/tally/internal/adapters/mq/publisher"
	"github.com/okian/tally/internal/adapters/mq/worker"
	"github.com/okian/tally/internal/adapters/repository"
	"github.com/okian/tally/internal/config"
	"github.com/okian/tally/internal/domain/dedupe"
	"github.com/okian/tally/internal/domain/dispatch"
	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/internal/domain/rating"
	"github.com/okian/tally/internal/domain/types"
	"github.com/okian/tally/pkg/logger"
	"github.com/okian/tally/pkg/metrics"
)

// Service owns every component of the pipeline:
// consumer -> worker pool -> dispatcher -> engine -> store, and engine/API -> publisher.
type Service struct {
	cfg config.Config

	mu        sync.RWMutex
	started   bool
	stopped   bool
	startedAt time.Time

	repo       repository.Repository
	engine     *rating.Engine
	dispatcher *dispatch.Dispatcher
	pool       *worker.Pool
	publisher  *publisher.Publisher
	consumer   *consumer.Consumer

	// set by options; resolved from cfg in Start when nil
	dialer     broker.Dialer
	subscriber broker.Subscriber
	subject    publisher.SubjectFunc

	logger logger.Logger
}

// New constructs a stopped Service.
func New(cfg config.Config, opts ...Option) *Service {
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, connects the publisher and begins consuming.
// Broker unavailability does not fail Start; both ends keep retrying.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return ErrStopped
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting rating service...")

	ownRepo := s.repo == nil
	if ownRepo {
		repo, err := openRepository(ctx, s.cfg.Store)
		if err != nil {
			return err
		}
		s.repo = repo
	}
	s.logger.Info(ctx, "rating store ready", logger.String("driver", s.cfg.Store.Driver))

	if s.dialer == nil || s.subscriber == nil {
		bus := natsbus.New(busConfig(s.cfg.Broker), natsbus.WithLogger(s.logger.Named("natsbus")))
		if s.dialer == nil {
			s.dialer = bus
		}
		if s.subscriber == nil {
			s.subscriber = bus
		}
		if s.subject == nil {
			s.subject = bus.Config().Subject
		}
	}
	if s.subject == nil {
		prefix := s.cfg.Broker.SubjectPrefix
		s.subject = func(t model.EventType) string { return prefix + "." + string(t) }
	}

	s.publisher = publisher.New(s.dialer, s.subject,
		publisher.WithRetryDelay(s.cfg.Broker.RetryDelay),
		publisher.WithLogger(s.logger.Named("publisher")),
	)
	s.publisher.Start(ctx)

	s.engine = rating.NewEngine(s.repo, s.publisher,
		rating.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))),
		rating.WithDefaultPlayerScore(s.cfg.DefaultPlayerScore),
		rating.WithLogger(s.logger.Named("rating-engine")),
	)

	s.dispatcher = dispatch.New(s.logger.Named("dispatch"))
	s.dispatcher.Register(model.EventScoreCreated, s.engine.HandleScoreCreated)
	s.dispatcher.Register(model.EventPlayerCreated, s.engine.HandlePlayerCreated)

	s.pool = worker.NewPool(s.cfg.WorkerCount,
		worker.WithQueueSize(s.cfg.WorkerQueueSize),
		worker.WithLogger(s.logger.Named("worker-pool")),
	)
	s.pool.Start(context.WithoutCancel(ctx))

	s.consumer = consumer.New(s.subscriber, s.dispatcher.Dispatch,
		consumer.WithRunner(s.pool),
		consumer.WithRetryDelay(s.cfg.Broker.RetryDelay),
		consumer.WithLogger(s.logger.Named("consumer")),
	)
	if err := s.consumer.Start(ctx); err != nil {
		s.abortStart(ctx, ownRepo)
		return fmt.Errorf("start consumer: %w", err)
	}

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "rating service started",
		logger.Int("workers", s.pool.Size()),
		logger.String("broker", s.cfg.Broker.ServerURL()),
	)
	return nil
}

// abortStart releases what a failed Start already launched. An injected
// repository is left open so Start can be tried again.
func (s *Service) abortStart(ctx context.Context, ownRepo bool) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.pool.Shutdown(cleanupCtx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown after failed start", logger.Error(err))
	}
	if err := s.publisher.Close(cleanupCtx); err != nil {
		s.logger.Warn(ctx, "publisher close after failed start", logger.Error(err))
	}
	if ownRepo {
		if err := s.repo.Close(); err != nil {
			s.logger.Warn(ctx, "store close after failed start", logger.Error(err))
		}
		s.repo = nil
	}
	s.consumer, s.pool, s.publisher, s.engine, s.dispatcher = nil, nil, nil, nil, nil
}

// Stop shuts the pipeline down in dependency order: stop consuming, let the
// workers finish, drain the publisher, close the store. A stopped Service
// cannot be started again.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping rating service...")

	var errs []error
	if err := s.consumer.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("consumer: %w", err))
	}
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("worker pool: %w", err))
	}
	if err := s.publisher.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("publisher: %w", err))
	}
	if err := s.repo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "rating service stopped")
	return errors.Join(errs...)
}

// CreateScore records a score and publishes score_created. The rating is
// updated when the event comes back through the consumer.
func (s *Service) CreateScore(ctx context.Context, playerID, teamID int64, score int) (model.Score, error) {
	if err := model.ValidateScore(score); err != nil {
		return model.Score{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.Score{}, model.ErrUnavailable
	}
	return s.createScore(ctx, playerID, teamID, score)
}

func (s *Service) createScore(ctx context.Context, playerID, teamID int64, score int) (model.Score, error) {
	sc, err := s.repo.AppendScore(ctx, model.Score{PlayerID: playerID, TeamID: teamID, Score: score})
	if err != nil {
		return model.Score{}, fmt.Errorf("record score: %w", err)
	}

	ev, err := model.NewEvent(model.EventScoreCreated, model.ScoreCreated{PlayerID: playerID, TeamID: teamID, Score: score})
	if err != nil {
		return model.Score{}, err
	}
	// One score, one event id, so a redelivered copy is folded once.
	ev.EventID = sc.ScoreID
	if err := s.publish(ctx, ev); err != nil {
		return model.Score{}, err
	}
	s.logger.Debug(ctx, "score accepted",
		logger.String("score_id", sc.ScoreID),
		logger.Int64("player_id", playerID),
		logger.Int64("team_id", teamID),
		logger.Int("score", score),
	)
	return sc, nil
}

// CreatePlayer publishes player_created; the engine seeds the default score.
func (s *Service) CreatePlayer(ctx context.Context, playerID, teamID int64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.ErrUnavailable
	}
	ev, err := model.NewEvent(model.EventPlayerCreated, model.PlayerCreated{PlayerID: playerID, TeamID: teamID})
	if err != nil {
		return err
	}
	return s.publish(ctx, ev)
}

// RatePlayers records one score per player of a team. Every score is
// validated before any is recorded.
func (s *Service) RatePlayers(ctx context.Context, teamID int64, players []types.PlayerScore) error {
	for _, p := range players {
		if err := model.ValidateScore(p.Score); err != nil {
			return fmt.Errorf("player %d: %w", p.PlayerID, err)
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.ErrUnavailable
	}
	for _, p := range players {
		if _, err := s.createScore(ctx, p.PlayerID, teamID, p.Score); err != nil {
			return fmt.Errorf("player %d: %w", p.PlayerID, err)
		}
	}
	s.logger.Info(ctx, "team rated", logger.Int64("team_id", teamID), logger.Int("players", len(players)))
	return nil
}

// GetPlayerRating returns the current rating; found is false when the player
// has none yet.
func (s *Service) GetPlayerRating(ctx context.Context, playerID, teamID int64) (model.Rating, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.Rating{}, false, model.ErrUnavailable
	}
	return s.repo.Get(ctx, model.Key{PlayerID: playerID, TeamID: teamID})
}

// TeamRatings lists the rated players of a team by player id.
func (s *Service) TeamRatings(ctx context.Context, teamID int64) ([]model.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, model.ErrUnavailable
	}
	return s.repo.ListByTeam(ctx, teamID)
}

// StartConsumer resumes consumption after StopConsumer.
func (s *Service) StartConsumer(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.ErrUnavailable
	}
	return s.consumer.Start(ctx)
}

// StopConsumer pauses consumption. Unacked deliveries are redelivered later.
func (s *Service) StopConsumer(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.ErrUnavailable
	}
	return s.consumer.Stop(ctx)
}

// Health checks the store and reports broker connectivity.
func (s *Service) Health(ctx context.Context) types.Health {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return types.Health{Status: types.StatusDegraded}
	}

	h := types.Health{
		ConsumerRunning:  s.consumer.Running(),
		BrokerConnected:  s.consumer.Connected(),
		PublisherPending: s.publisher.Pending(),
	}
	n, err := s.repo.Count(ctx)
	if err != nil {
		s.logger.Warn(ctx, "store health check failed", logger.Error(err))
	} else {
		h.StoreReachable = true
		h.Ratings = n
		metrics.UpdateRatingsTotal(n)
	}
	h.Status = types.StatusOK
	if !h.Healthy() {
		h.Status = types.StatusDegraded
	}
	return h
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"worker_count": s.cfg.WorkerCount,
		"store_driver": s.cfg.Store.Driver,
	}
	if !s.started {
		return stats
	}

	stats["uptime_seconds"] = int64(time.Since(s.startedAt).Seconds())
	stats["publisher_pending"] = s.publisher.Pending()
	stats["consumer_running"] = s.consumer.Running()
	stats["broker_connected"] = s.consumer.Connected()
	stats["remembered_events"] = s.engine.Remembered()
	if n, err := s.repo.Count(context.Background()); err == nil {
		stats["ratings"] = n
	}
	return stats
}

func (s *Service) publish(ctx context.Context, ev model.Envelope) error {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		if errors.Is(err, publisher.ErrClosed) {
			return fmt.Errorf("%w: %w", model.ErrUnavailable, err)
		}
		return err
	}
	return nil
}

func openRepository(ctx context.Context, cfg config.Store) (repository.Repository, error) {
	switch cfg.Driver {
	case config.StorePostgres:
		if cfg.Migrate {
			if err := repository.Migrate(cfg.DSN); err != nil {
				return nil, fmt.Errorf("migrate store: %w", err)
			}
		}
		store, err := repository.NewPostgresStore(ctx, cfg.DSN, repository.PostgresOptions{
			MaxConns:       cfg.MaxConns,
			QueryTimeout:   cfg.QueryTimeout,
			ConnectTimeout: cfg.ConnectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return store, nil
	default:
		return repository.NewMemoryStore(context.WithoutCancel(ctx)), nil
	}
}

func busConfig(b config.Broker) natsbus.Config {
	c := natsbus.DefaultConfig()
	c.URL = b.ServerURL()
	c.ConnectTimeout = b.ConnectionTimeout
	c.Heartbeat = b.Heartbeat
	c.MaxReconnects = b.ConnectionAttempts
	c.ReconnectWait = b.RetryDelay
	c.Stream = b.Stream
	c.SubjectPrefix = b.SubjectPrefix
	c.Consumer = b.Consumer
	c.AckWait = b.AckWait
	c.MaxDeliver = b.MaxDeliver
	return c
}
