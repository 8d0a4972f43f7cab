package app

import (
	"github.com/gorilla/sessions"

	"github.com/sodacore/sodacore/pkg/cache"
	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/pkg/database"
	"github.com/sodacore/sodacore/pkg/logger"
	"github.com/sodacore/sodacore/pkg/stream"
)

// Application holds shared infrastructure dependencies for all services.
// Pass to all service Routes calls during server initialization.
//
// Logging: app.Logger is backed by a trace-aware handler — use slog's context methods
// and trace_id, span_id, and request_id are injected automatically:
//
//	app.Logger.InfoContext(ctx, "processing order", "order_id", id)
//	app.Logger.ErrorContext(ctx, "failed to save", "error", err)
//
// Use app.Logger.Info/Error (no context) only for startup and shutdown messages.
type Application struct {
	Db     *database.Database
	Logger logger.Logger
	Redis  *cache.RedisClient

	// Facade is the single entry point bounded contexts use to dispatch
	// commands, queries, and events.
	Facade *cqrs.Facade

	// Commands and Queries are the registries Facade dispatches through.
	// Bounded contexts register their handlers here during wiring.
	Commands *cqrs.CommandRegistry
	Queries  *cqrs.QueryRegistry

	// EventBus is the bus Facade publishes events on — either an
	// in-process cqrs.InProcessEventBus or, when SODA_EVENT_BUS_TYPE is
	// redis-stream, the *stream.Bus below, upcast to the interface.
	EventBus cqrs.EventBus

	// StreamBus is non-nil when EventBus is backed by the persistent
	// Redis Streams transport. The worker process calls StreamBus.Start
	// to begin consuming; the API process only needs it to publish.
	StreamBus *stream.Bus

	// Idempotency is the per-(event,handler) dedup store StreamBus uses.
	// Non-nil only alongside StreamBus.
	Idempotency *stream.RedisIdempotencyStore

	SessionStore sessions.Store // Redis-backed session store; nil in worker process
}
