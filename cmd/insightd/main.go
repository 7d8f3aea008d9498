// Command insightd serves journal insights over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"golang.org/x/sync/errgroup"

	"github.com/veranima/insight"
	httpapi "github.com/veranima/insight/api/http"
	"github.com/veranima/insight/api/http/handlers"
	"github.com/veranima/insight/api/http/middleware"
	"github.com/veranima/insight/internal/config"
	"github.com/veranima/insight/internal/telemetry"
	"github.com/veranima/insight/providers"
)

const (
	shutdownTimeout = 10 * time.Second
	limiterCleanup  = 5 * time.Minute
)

func main() {
	// Load configuration from env/.env
	cfg, err := config.Load()
	if err != nil {
		telemetry.NewLogger("info", "json").WithError(err).Fatal("load config")
	}

	log := telemetry.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if !cfg.KnownProvider() {
		log.WithField("provider", cfg.Provider).
			Warnf("unknown AI_PROVIDER, using %s", insight.DefaultVariant)
	}

	logs := telemetry.NewLogBridge(log)
	defer logs.Close()
	metrics := telemetry.NewMetrics()
	defer metrics.Close()

	svc, err := insight.New(cfg.Insight(), providers.Registry(), cfg.Options()...)
	if err != nil {
		log.WithError(err).Fatal("init insight service")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)

	var limit []fiber.Handler
	if cfg.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
		limit = append(limit, limiter.Handler())
		group.Go(func() error {
			return limiter.Run(ctx, limiterCleanup)
		})
	}

	app := fiber.New(fiber.Config{
		AppName:               "insightd",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New())

	httpapi.Register(app,
		handlers.NewHealthHandler(svc),
		handlers.NewInsightHandler(svc, log, handlers.WithStreamTimeout(cfg.StreamTimeout)),
		limit...,
	)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	group.Go(func() error {
		log.WithFields(map[string]interface{}{
			"port":     cfg.Port,
			"provider": svc.Provider(),
		}).Info("HTTP server listening")
		return app.Listen(":" + cfg.Port)
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := group.Wait(); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
