package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/irr/internal/config"
	"github.com/okian/irr/pkg/logger"
)

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			t.Setenv("IRR_ADDR", ":8080")
			t.Setenv("IRR_QUEUE_SIZE", "1000")
			t.Setenv("IRR_WORKER_COUNT", "4")
			t.Setenv("IRR_PRECISION", "0.0001")

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 1000)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
				convey.So(cfg.Precision, convey.ShouldEqual, 0.0001)

				convey.Convey("And the service should pick it up", func() {
					svc := newService(cfg, logger.Nop())
					convey.So(svc.Precision(), convey.ShouldEqual, 0.0001)
					convey.So(svc.GetStats()["queueSize"], convey.ShouldEqual, 1000)
				})
			})
		})

		convey.Convey("When the configuration is invalid", func() {
			t.Setenv("IRR_ADDR", "")

			convey.Convey("Then run should fail before serving", func() {
				err := run(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

func TestHandler(t *testing.T) {
	convey.Convey("Given the full handler over a started service", t, func() {
		ctx := context.Background()
		cfg := config.New()
		cfg.WorkerCount = 2
		svc := newService(cfg, logger.Nop())
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop()

		srv := httptest.NewServer(newHandler(ctx, cfg, svc, logger.Nop()))
		defer srv.Close()

		convey.Convey("Then API and docs routes should be served", func() {
			for _, path := range []string{"/healthz", "/stats", "/metrics", "/openapi.yaml", "/api-docs"} {
				resp, err := http.Get(srv.URL + path)
				convey.So(err, convey.ShouldBeNil)
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("And an IRR can be computed over the wire", func() {
			resp, err := http.Post(srv.URL+"/irr", "application/json",
				strings.NewReader(`{"cashflow": {"2021-01-01": -100, "2022-01-01": 110}}`))
			convey.So(err, convey.ShouldBeNil)
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			convey.So(string(body), convey.ShouldContainSubstring, `"method":"secant"`)
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When the system metrics updater runs until its context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})

		convey.Convey("When the service metrics updater runs until its context ends", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			svc := newService(config.New(), logger.Nop())

			convey.So(func() { startServiceMetricsUpdater(ctx, svc) }, convey.ShouldNotPanic)
		})

		convey.Convey("When system metrics are updated directly", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})
	})
}
