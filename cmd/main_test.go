package main

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/focusclass/focusd/internal/adapters/http/api"
	"github.com/focusclass/focusd/internal/adapters/hub"
	"github.com/focusclass/focusd/internal/adapters/storage"
	"github.com/focusclass/focusd/internal/adapters/stream"
	service "github.com/focusclass/focusd/internal/app"
	"github.com/focusclass/focusd/internal/config"
	"github.com/focusclass/focusd/internal/domain/focus"
	"github.com/focusclass/focusd/internal/domain/throttle"
	"github.com/focusclass/focusd/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the authority application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			_ = os.Setenv("FOCUSD_ADDR", ":9999")
			_ = os.Setenv("FOCUSD_MAX_PARTICIPANTS", "10")
			defer func() {
				_ = os.Unsetenv("FOCUSD_ADDR")
				_ = os.Unsetenv("FOCUSD_MAX_PARTICIPANTS")
			}()

			convey.Convey("Then configuration should be loadable", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9999")
				convey.So(cfg.MaxParticipants, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When wiring the full component stack", func() {
			ctx := context.Background()
			store, err := storage.NewSQLiteStore(ctx, storage.WithPath(":memory:"))
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = store.Close() }()

			writer := storage.NewAsyncWriter(store)
			connHub := hub.New()
			streamer := stream.New(stream.NewSyntheticSource(), connHub)

			svc := service.New(
				connHub,
				streamer,
				focus.New(),
				throttle.New(),
				writer,
			)

			convey.Convey("Then the manager and routes come up", func() {
				convey.So(svc, convey.ShouldNotBeNil)

				mux := http.NewServeMux()
				api.NewServer(svc).Register(ctx, mux, connHub.HandleSession)

				srv := &http.Server{
					Addr:              ":0",
					Handler:           mux,
					ReadHeaderTimeout: 5 * time.Second,
				}
				convey.So(srv.Handler, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When updating system metrics", func() {
			convey.Convey("Then the updater should not panic", func() {
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			})
		})
	})
}
