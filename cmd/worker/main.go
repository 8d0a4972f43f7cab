package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron"

	"github.com/sodacore/sodacore/pkg/app"
	"github.com/sodacore/sodacore/pkg/config"
	"github.com/sodacore/sodacore/pkg/logger"
	"github.com/sodacore/sodacore/pkg/telemetry"
	orderSvcs "github.com/sodacore/sodacore/services/order/application/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := config.ValidateForProduction(cfg); err != nil {
		slog.Error("production config validation failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg)

	ctx := context.Background()

	otelShutdown, _, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(ctx) //nolint:errcheck

	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	a, cleanup, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to wire application", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer cleanup()
	log.Info("database and redis connected")

	if err := orderSvcs.Wire(a); err != nil {
		log.Error("failed to wire order bounded context", "error", err)
		os.Exit(1) //nolint:gocritic
	}

	consumeCtx, stopConsuming := context.WithCancel(ctx)
	defer stopConsuming()

	if a.StreamBus != nil {
		if err := a.StreamBus.Start(consumeCtx); err != nil {
			log.Error("failed to start stream consumer", "error", err)
			os.Exit(1) //nolint:gocritic
		}
		log.Info("stream transport consuming", "prefix", cfg.EventRedisStreamPrefix)
	}

	cronRunner := startIdempotencyCleanup(ctx, a, cfg, log)
	if cronRunner != nil {
		defer cronRunner.Stop()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	stopConsuming()
	if a.StreamBus != nil {
		a.StreamBus.Wait()
	}
	log.Info("worker stopped")
}

// startIdempotencyCleanup schedules the recurring sweep of expired
// per-handler idempotency claims, on the cron expression configured via
// SODA_EVENT_IDEMPOTENCY_CLEANUP_CRON. Returns nil if idempotency tracking
// is disabled, since there is nothing to sweep.
func startIdempotencyCleanup(ctx context.Context, a *app.Application, cfg *config.Config, log logger.Logger) *cron.Cron {
	if a.Idempotency == nil {
		return nil
	}

	c := cron.New()
	err := c.AddFunc(cfg.EventIdempotencyCleanupCron, func() {
		scanned, err := a.Idempotency.CleanupExpired(ctx)
		if err != nil {
			log.ErrorContext(ctx, "idempotency cleanup failed", "error", err)
			return
		}
		log.InfoContext(ctx, "idempotency cleanup completed", "scanned", scanned)
	})
	if err != nil {
		log.Error("failed to schedule idempotency cleanup", "error", err, "cron", cfg.EventIdempotencyCleanupCron)
		return nil
	}

	c.Start()
	log.Info("idempotency cleanup scheduled", "cron", cfg.EventIdempotencyCleanupCron)
	return c
}
