package service_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	service "github.com/okian/tally/internal/app"
	"github.com/okian/tally/internal/config"
	"github.com/okian/tally/internal/domain/types"
	"github.com/okian/tally/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var streamSeq atomic.Int64

func runNATS(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		t.Fatal("nats server not ready")
	}
	return ns
}

func natsConfig(url string) config.Config {
	cfg := testConfig()
	n := streamSeq.Add(1)
	cfg.Broker.URL = url
	cfg.Broker.Stream = fmt.Sprintf("IT_%d", n)
	cfg.Broker.SubjectPrefix = fmt.Sprintf("it%d.events", n)
	cfg.Broker.Consumer = fmt.Sprintf("it-%d", n)
	cfg.Broker.ConnectionAttempts = 1
	cfg.Broker.ConnectionTimeout = time.Second
	cfg.Broker.RetryDelay = 50 * time.Millisecond
	return cfg
}

func TestServiceOverNATS(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded broker test in short mode")
	}
	ns := runNATS(t)
	defer ns.Shutdown()

	Convey("Given a service consuming from JetStream", t, func() {
		ctx := context.Background()
		svc := service.New(natsConfig(ns.ClientURL()), service.WithLogger(logger.Nop()))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When scores are submitted for two players", func() {
			for _, s := range []int{10, 6} {
				_, err := svc.CreateScore(ctx, 1, 1, s)
				So(err, ShouldBeNil)
			}
			for _, s := range []int{1, 2, 3} {
				_, err := svc.CreateScore(ctx, 2, 1, s)
				So(err, ShouldBeNil)
			}

			Convey("Then each rating is the mean of its scores", func() {
				So(eventually(func() bool { r, ok := ratingOf(svc, 1, 1)(); return ok && r.TotalOfScores == 2 }), ShouldBeTrue)
				So(eventually(func() bool { r, ok := ratingOf(svc, 2, 1)(); return ok && r.TotalOfScores == 3 }), ShouldBeTrue)
				first, _ := ratingOf(svc, 1, 1)()
				second, _ := ratingOf(svc, 2, 1)()
				So(first.AverageScore, ShouldEqual, 8)
				So(second.AverageScore, ShouldEqual, 2)

				list, err := svc.TeamRatings(ctx, 1)
				So(err, ShouldBeNil)
				So(len(list), ShouldEqual, 2)
			})

			Convey("Then health reports the broker connected", func() {
				So(eventually(func() bool { return svc.Health(ctx).Status == types.StatusOK }), ShouldBeTrue)
			})
		})

		Convey("When the consumer is paused while scores arrive", func() {
			So(svc.StopConsumer(ctx), ShouldBeNil)
			_, err := svc.CreateScore(ctx, 3, 2, 4)
			So(err, ShouldBeNil)
			time.Sleep(100 * time.Millisecond)
			_, found, _ := svc.GetPlayerRating(ctx, 3, 2)
			So(found, ShouldBeFalse)

			Convey("Then resuming folds the backlog", func() {
				So(svc.StartConsumer(ctx), ShouldBeNil)
				So(eventually(func() bool { _, ok := ratingOf(svc, 3, 2)(); return ok }), ShouldBeTrue)
			})
		})
	})
}

func TestServiceBrokerOutage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded broker test in short mode")
	}

	Convey("Given a service whose broker is down at start", t, func() {
		ctx := context.Background()
		cfg := natsConfig("nats://127.0.0.1:1")
		svc := service.New(cfg, service.WithLogger(logger.Nop()))

		Convey("Then Start still succeeds and health is degraded", func() {
			So(svc.Start(ctx), ShouldBeNil)
			defer func() {
				stopCtx, cancel := context.WithTimeout(ctx, time.Second)
				defer cancel()
				_ = svc.Stop(stopCtx)
			}()
			h := svc.Health(ctx)
			So(h.BrokerConnected, ShouldBeFalse)
			So(h.Status, ShouldEqual, types.StatusDegraded)

			_, err := svc.CreateScore(ctx, 1, 1, 5)
			So(err, ShouldBeNil)
			So(svc.GetStats()["publisher_pending"], ShouldBeGreaterThanOrEqualTo, 0)
		})
	})
}
