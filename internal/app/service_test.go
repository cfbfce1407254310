package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/tally/internal/adapters/mq/broker"
	"github.com/okian/tally/internal/adapters/repository"
	service "github.com/okian/tally/internal/app"
	"github.com/okian/tally/internal/config"
	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/internal/domain/types"
	"github.com/okian/tally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	if err := logger.InitWith(logger.Options{Level: "error"}); err != nil {
		panic(err)
	}
}

// loopback is an in-process broker: whatever is sent is delivered to the
// current subscriber.
type loopback struct {
	mu      sync.Mutex
	handler broker.DeliveryHandler
	backlog [][]byte
	acks    int
	naks    int
	terms   int
	dials   int
	closes  int
	sent    map[string][]string
}

func newLoopback() *loopback {
	return &loopback{sent: make(map[string][]string)}
}

func (l *loopback) DialSender(context.Context) (broker.Sender, error) {
	l.mu.Lock()
	l.dials++
	l.mu.Unlock()
	return loopSender{l: l}, nil
}

func (l *loopback) Subscribe(_ context.Context, h broker.DeliveryHandler) (broker.Subscription, error) {
	l.mu.Lock()
	l.handler = h
	backlog := l.backlog
	l.backlog = nil
	l.mu.Unlock()
	for _, body := range backlog {
		h(&loopDelivery{l: l, body: body})
	}
	return &loopSubscription{l: l, done: make(chan struct{})}, nil
}

func (l *loopback) deliver(body []byte) {
	l.mu.Lock()
	h := l.handler
	if h == nil {
		l.backlog = append(l.backlog, body)
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()
	h(&loopDelivery{l: l, body: body})
}

func (l *loopback) subjects(subject string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent[subject])
}

func (l *loopback) senders() (dials, closes int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dials, l.closes
}

func (l *loopback) outcomes() (acks, naks, terms int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acks, l.naks, l.terms
}

type loopSender struct{ l *loopback }

func (s loopSender) Send(_ context.Context, subject string, body []byte, msgID string) error {
	s.l.mu.Lock()
	s.l.sent[subject] = append(s.l.sent[subject], msgID)
	s.l.mu.Unlock()
	s.l.deliver(body)
	return nil
}

func (s loopSender) Close() error {
	s.l.mu.Lock()
	s.l.closes++
	s.l.mu.Unlock()
	return nil
}

type loopSubscription struct {
	l    *loopback
	done chan struct{}
	once sync.Once
}

func (s *loopSubscription) Done() <-chan struct{} { return s.done }
func (s *loopSubscription) Err() error            { return nil }
func (s *loopSubscription) Close() error {
	s.once.Do(func() {
		s.l.mu.Lock()
		s.l.handler = nil
		s.l.mu.Unlock()
		close(s.done)
	})
	return nil
}

type loopDelivery struct {
	l    *loopback
	body []byte
}

func (d *loopDelivery) Data() []byte    { return d.body }
func (d *loopDelivery) Subject() string { return "loop" }
func (d *loopDelivery) Attempt() uint64 { return 1 }
func (d *loopDelivery) Ack() error      { d.l.mu.Lock(); d.l.acks++; d.l.mu.Unlock(); return nil }
func (d *loopDelivery) Nak() error      { d.l.mu.Lock(); d.l.naks++; d.l.mu.Unlock(); return nil }
func (d *loopDelivery) Term() error     { d.l.mu.Lock(); d.l.terms++; d.l.mu.Unlock(); return nil }

func testConfig() config.Config {
	cfg := *config.New()
	cfg.WorkerCount = 4
	cfg.Broker.RetryDelay = 10 * time.Millisecond
	return cfg
}

func newService(lb *loopback) *service.Service {
	return service.New(testConfig(),
		service.WithLogger(logger.Nop()),
		service.WithBroker(lb, lb, nil),
	)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func ratingOf(svc *service.Service, playerID, teamID int64) func() (model.Rating, bool) {
	return func() (model.Rating, bool) {
		r, found, err := svc.GetPlayerRating(context.Background(), playerID, teamID)
		return r, found && err == nil
	}
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		ctx := context.Background()
		svc := newService(newLoopback())

		Convey("When it is not started", func() {
			Convey("Then operations report it unavailable", func() {
				_, err := svc.CreateScore(ctx, 1, 1, 5)
				So(errors.Is(err, model.ErrUnavailable), ShouldBeTrue)
				_, _, err = svc.GetPlayerRating(ctx, 1, 1)
				So(errors.Is(err, model.ErrUnavailable), ShouldBeTrue)
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(svc.Health(ctx).Healthy(), ShouldBeFalse)
			})
		})

		Convey("When it is started and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then stopping again is a no-op and restarting is refused", func() {
				So(svc.Stop(ctx), ShouldBeNil)
				So(errors.Is(svc.Start(ctx), service.ErrStopped), ShouldBeTrue)
			})
		})
	})
}

func TestServiceFailedStart(t *testing.T) {
	Convey("Given a service started with a context that is already cancelled", t, func() {
		lb := newLoopback()
		svc := newService(lb)
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		err := svc.Start(cancelled)

		Convey("Then Start fails and leaves nothing running", func() {
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
			So(svc.Health(context.Background()).Healthy(), ShouldBeFalse)
			dials, closes := lb.senders()
			So(closes, ShouldEqual, dials)
		})

		Convey("When it is started again with a live context", func() {
			ctx := context.Background()
			So(svc.Start(ctx), ShouldBeNil)
			defer func() { _ = svc.Stop(ctx) }()

			Convey("Then scores are folded", func() {
				_, err := svc.CreateScore(ctx, 4, 4, 8)
				So(err, ShouldBeNil)
				So(eventually(func() bool { r, ok := ratingOf(svc, 4, 4)(); return ok && r.TotalOfScores == 1 }), ShouldBeTrue)
			})
		})
	})
}

func TestServiceScores(t *testing.T) {
	Convey("Given a started service on a loopback broker", t, func() {
		ctx := context.Background()
		lb := newLoopback()
		svc := newService(lb)
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When scores 10 and 6 are created for one player", func() {
			first, err := svc.CreateScore(ctx, 1, 1, 10)
			So(err, ShouldBeNil)
			So(first.ScoreID, ShouldNotBeEmpty)
			So(eventually(func() bool { r, ok := ratingOf(svc, 1, 1)(); return ok && r.TotalOfScores == 1 }), ShouldBeTrue)
			_, err = svc.CreateScore(ctx, 1, 1, 6)
			So(err, ShouldBeNil)

			Convey("Then the rating converges to average 8 over 2 scores", func() {
				So(eventually(func() bool { r, ok := ratingOf(svc, 1, 1)(); return ok && r.TotalOfScores == 2 }), ShouldBeTrue)
				r, _ := ratingOf(svc, 1, 1)()
				So(r.AverageScore, ShouldEqual, 8)
			})

			Convey("Then each fold announced rating_updated", func() {
				So(eventually(func() bool { return lb.subjects("tally.events.rating_updated") == 2 }), ShouldBeTrue)
			})

			Convey("Then the score events carry the score id as message id", func() {
				lb.mu.Lock()
				defer lb.mu.Unlock()
				So(lb.sent["tally.events.score_created"][0], ShouldEqual, first.ScoreID)
			})
		})

		Convey("When a score is out of range", func() {
			_, err := svc.CreateScore(ctx, 1, 1, 11)

			Convey("Then it is refused before anything is published", func() {
				So(errors.Is(err, model.ErrInvalidScore), ShouldBeTrue)
				So(lb.subjects("tally.events.score_created"), ShouldEqual, 0)
			})
		})

		Convey("When a player is created and then scored", func() {
			So(svc.CreatePlayer(ctx, 7, 3), ShouldBeNil)
			So(eventually(func() bool { _, ok := ratingOf(svc, 7, 3)(); return ok }), ShouldBeTrue)
			_, err := svc.CreateScore(ctx, 7, 3, 9)
			So(err, ShouldBeNil)

			Convey("Then the default score counts as the first observation", func() {
				So(eventually(func() bool { r, ok := ratingOf(svc, 7, 3)(); return ok && r.TotalOfScores == 2 }), ShouldBeTrue)
				r, _ := ratingOf(svc, 7, 3)()
				So(r.AverageScore, ShouldEqual, 7)
			})
		})

		Convey("When a team is rated in one batch", func() {
			err := svc.RatePlayers(ctx, 5, []types.PlayerScore{{PlayerID: 1, Score: 4}, {PlayerID: 2, Score: 8}})
			So(err, ShouldBeNil)

			Convey("Then every player of the team gets a rating", func() {
				So(eventually(func() bool {
					list, err := svc.TeamRatings(ctx, 5)
					return err == nil && len(list) == 2
				}), ShouldBeTrue)
				list, _ := svc.TeamRatings(ctx, 5)
				So(list[0].AverageScore, ShouldEqual, 4)
				So(list[1].AverageScore, ShouldEqual, 8)
			})
		})

		Convey("When a batch holds one bad score", func() {
			err := svc.RatePlayers(ctx, 5, []types.PlayerScore{{PlayerID: 1, Score: 4}, {PlayerID: 2, Score: -1}})

			Convey("Then nothing from the batch is published", func() {
				So(errors.Is(err, model.ErrInvalidScore), ShouldBeTrue)
				So(lb.subjects("tally.events.score_created"), ShouldEqual, 0)
			})
		})

		Convey("When rating_updated events come back through the consumer", func() {
			_, err := svc.CreateScore(ctx, 2, 2, 3)
			So(err, ShouldBeNil)

			Convey("Then they are acked without a second fold", func() {
				So(eventually(func() bool { acks, _, _ := lb.outcomes(); return acks >= 2 }), ShouldBeTrue)
				r, _ := ratingOf(svc, 2, 2)()
				So(r.TotalOfScores, ShouldEqual, 1)
				_, naks, terms := lb.outcomes()
				So(naks, ShouldEqual, 0)
				So(terms, ShouldEqual, 0)
			})
		})

		Convey("When health and stats are read", func() {
			h := svc.Health(ctx)
			stats := svc.GetStats()

			Convey("Then they describe a running pipeline", func() {
				So(h.StoreReachable, ShouldBeTrue)
				So(h.ConsumerRunning, ShouldBeTrue)
				So(eventually(func() bool { return svc.Health(ctx).BrokerConnected }), ShouldBeTrue)
				So(stats["store_driver"], ShouldEqual, config.StoreMemory)
				So(stats, ShouldContainKey, "publisher_pending")
			})
		})

		Convey("When the consumer is stopped", func() {
			So(svc.StopConsumer(ctx), ShouldBeNil)

			Convey("Then it can be started again", func() {
				So(svc.Health(ctx).ConsumerRunning, ShouldBeFalse)
				So(svc.StartConsumer(ctx), ShouldBeNil)
				So(svc.Health(ctx).ConsumerRunning, ShouldBeTrue)
			})
		})
	})
}

func TestServiceConcurrentScores(t *testing.T) {
	Convey("Given many concurrent scores for a handful of players", t, func() {
		ctx := context.Background()
		svc := newService(newLoopback())
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		const players, perPlayer = 5, 40
		var wg sync.WaitGroup
		for p := int64(1); p <= players; p++ {
			wg.Add(1)
			go func(p int64) {
				defer wg.Done()
				for i := 0; i < perPlayer; i++ {
					_, _ = svc.CreateScore(ctx, p, 9, i%11)
				}
			}(p)
		}
		wg.Wait()

		Convey("Then every rating is the exact mean of its scores", func() {
			want := 0.0
			for i := 0; i < perPlayer; i++ {
				want += float64(i % 11)
			}
			want /= perPlayer
			for p := int64(1); p <= players; p++ {
				So(eventually(func() bool { r, ok := ratingOf(svc, p, 9)(); return ok && r.TotalOfScores == perPlayer }), ShouldBeTrue)
				r, _ := ratingOf(svc, p, 9)()
				So(r.AverageScore, ShouldAlmostEqual, want, 1e-9)
			}
		})
	})
}

func TestServiceWithRepository(t *testing.T) {
	Convey("Given an injected repository", t, func() {
		ctx := context.Background()
		repo := repository.NewMemoryStore(ctx)
		So(repo.Create(ctx, model.Rating{PlayerID: 1, TeamID: 1, AverageScore: 6, TotalOfScores: 3}), ShouldBeNil)
		lb := newLoopback()
		svc := service.New(testConfig(), service.WithLogger(logger.Nop()), service.WithBroker(lb, lb, nil), service.WithRepository(repo))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("Then the service reads from it", func() {
			r, found, err := svc.GetPlayerRating(ctx, 1, 1)
			So(err, ShouldBeNil)
			So(found, ShouldBeTrue)
			So(r.TotalOfScores, ShouldEqual, 3)
		})
	})
}
