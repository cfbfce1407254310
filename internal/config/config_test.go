package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/tally/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DefaultPlayerScore, convey.ShouldEqual, 5)
			convey.So(cfg.Broker.RetryDelay, convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.Broker.ServerURL(), convey.ShouldEqual, "nats://localhost:4222")
			convey.So(cfg.Store.Driver, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		convey.Convey("When the broker URL overrides host and port", func() {
			cfg.Broker.Host = ""
			cfg.Broker.URL = "nats://a:4222,nats://b:4222"

			convey.So(cfg.Validate(), convey.ShouldBeNil)
			convey.So(cfg.Broker.ServerURL(), convey.ShouldEqual, "nats://a:4222,nats://b:4222")
		})

		convey.Convey("When the postgres driver has no DSN", func() {
			cfg.Store.Driver = config.StorePostgres
			err := cfg.Validate()

			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "store.dsn")
		})

		convey.Convey("When the store driver is unknown", func() {
			cfg.Store.Driver = "sqlite"
			convey.So(cfg.Validate(), convey.ShouldNotBeNil)
		})

		convey.Convey("When the retry delay is zero", func() {
			cfg.Broker.RetryDelay = 0
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When the worker count is zero", func() {
			cfg.WorkerCount = 0
			convey.So(cfg.Validate().Error(), convey.ShouldContainSubstring, "worker_count")
		})
	})
}
