package cqrs

import (
	"context"
	"reflect"
	"time"

	"github.com/sodacore/sodacore/pkg/execctx"
	"github.com/sodacore/sodacore/pkg/logger"
	"github.com/sodacore/sodacore/pkg/txn"
)

const (
	// DefaultSyncDepthLimit is the synchronous command/event nesting
	// ceiling within a single goroutine call stack.
	DefaultSyncDepthLimit = 10
	// DefaultAsyncHopLimit is the cross-hop (async dispatch or stream
	// transport round-trip) nesting ceiling.
	DefaultAsyncHopLimit = 20
)

// Facade is the single entry point application code uses to dispatch
// commands, queries, and events. It wraps every dispatch with the fixed
// interceptor pipeline: restore ExecutionContext, enforce the recursion
// ceiling, log entry, invoke, log exit.
type Facade struct {
	commands *CommandBus
	queries  *QueryBus
	events   EventBus
	pool     *AsyncPool
	log      logger.Logger

	syncDepthLimit int
	asyncHopLimit  int
}

// FacadeOption customizes a Facade at construction time.
type FacadeOption func(*Facade)

// WithSyncDepthLimit overrides DefaultSyncDepthLimit.
func WithSyncDepthLimit(n int) FacadeOption {
	return func(f *Facade) { f.syncDepthLimit = n }
}

// WithAsyncHopLimit overrides DefaultAsyncHopLimit.
func WithAsyncHopLimit(n int) FacadeOption {
	return func(f *Facade) { f.asyncHopLimit = n }
}

// WithAsyncPool overrides the default four-slot async pool.
func WithAsyncPool(pool *AsyncPool) FacadeOption {
	return func(f *Facade) { f.pool = pool }
}

// NewFacade wires a Facade over the given registries, event bus, and
// logger, applying any options.
func NewFacade(commands *CommandRegistry, queries *QueryRegistry, events EventBus, log logger.Logger, opts ...FacadeOption) *Facade {
	f := &Facade{
		commands:       NewCommandBus(commands),
		queries:        NewQueryBus(queries),
		events:         events,
		pool:           NewAsyncPool(4),
		log:            log,
		syncDepthLimit: DefaultSyncDepthLimit,
		asyncHopLimit:  DefaultAsyncHopLimit,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SendCommand dispatches cmd synchronously through the interceptor
// pipeline and the single registered CommandHandler.
func (f *Facade) SendCommand(ctx context.Context, cmd Command) (any, error) {
	if cmd == nil {
		return nil, NewContractViolation("cqrs: SendCommand requires a non-nil command")
	}
	return f.runSync(ctx, "command", typeName(cmd), cmd.Envelope(), func(ctx context.Context) (any, error) {
		return f.commands.Send(ctx, cmd)
	})
}

// SendQuery dispatches query synchronously through the interceptor
// pipeline and the single registered QueryHandler.
func (f *Facade) SendQuery(ctx context.Context, query Query) (any, error) {
	if query == nil {
		return nil, NewContractViolation("cqrs: SendQuery requires a non-nil query")
	}
	return f.runSync(ctx, "query", typeName(query), query.Envelope(), func(ctx context.Context) (any, error) {
		return f.queries.Send(ctx, query)
	})
}

// PublishEvent dispatches evt synchronously, in-process, through every
// matching handler on the configured EventBus, through the interceptor
// pipeline. The repository event aspect (InterceptMutation) does not go
// through here; it publishes on its EventBus directly.
func (f *Facade) PublishEvent(ctx context.Context, evt DomainEvent) error {
	if evt == nil {
		return NewContractViolation("cqrs: PublishEvent requires a non-nil event")
	}
	_, err := f.runSync(ctx, "event", evt.EventType(), evt.Envelope(), func(ctx context.Context) (any, error) {
		return nil, f.events.Publish(ctx, evt)
	})
	return err
}

// SendAsyncCommand dispatches cmd on the bounded async worker pool,
// advancing the cross-hop counter instead of the synchronous call trail —
// crossing this boundary starts a fresh goroutine stack, so sync nesting
// resets to zero while hop depth increments by one.
func (f *Facade) SendAsyncCommand(ctx context.Context, cmd Command) *Future {
	if cmd == nil {
		future := newFuture()
		future.complete(nil, NewContractViolation("cqrs: SendAsyncCommand requires a non-nil command"))
		return future
	}

	ec, hasExecCtx := execctx.Extract(ctx)
	hop := ec.HopCount
	if hasExecCtx {
		hop++
	}
	if hop > f.asyncHopLimit {
		future := newFuture()
		future.complete(nil, NewAsyncRecursionTooDeep(f.asyncHopLimit, hop))
		return future
	}

	// runSync recomputes this same hop from ctx and stamps it onto
	// cmd.Envelope() — the check above only needs to fail fast before the
	// command is handed to the pool. The submitted command starts with an
	// empty synchronous call trail.
	asyncCtx := context.WithValue(ctx, callTrailKey{}, []callFrame(nil))
	return f.pool.Submit(func() (any, error) {
		return f.runSync(asyncCtx, "command", typeName(cmd), cmd.Envelope(), func(ctx context.Context) (any, error) {
			return f.commands.Send(ctx, cmd)
		})
	})
}

// SendTransactCommand dispatches cmd within a fresh txn.Scope: on success
// the scope is committed (flushing any events registered by the
// repository event aspect during the call), on error it is rolled back
// and those events are discarded.
// If ctx already carries an active scope, it is reused and left for the
// caller to commit/rollback.
func (f *Facade) SendTransactCommand(ctx context.Context, cmd Command) (any, error) {
	if existing, ok := txn.ScopeFromContext(ctx); ok && existing != nil {
		return f.SendCommand(ctx, cmd)
	}

	scope := txn.NewScope()
	scopedCtx := txn.WithScope(ctx, scope)
	result, err := f.SendCommand(scopedCtx, cmd)
	if err != nil {
		scope.Rollback()
		return result, err
	}
	scope.Commit()
	return result, nil
}

// runSync implements the fixed interceptor order: restore ExecutionContext
// from ctx into the dispatched item's envelope (and vice versa if ctx has
// none yet), enforce the synchronous recursion ceiling, log entry, invoke
// fn, log exit. The derived context is never propagated past this call,
// so "clear on exit" is just letting it go out of scope.
func (f *Facade) runSync(ctx context.Context, kind, typeName string, env *Envelope, fn func(context.Context) (any, error)) (any, error) {
	ec, hasExecCtx := execctx.Extract(ctx)
	hop := ec.HopCount
	if hasExecCtx {
		hop++
	}

	env.Merge(Envelope{
		RequestID:   ec.RequestID,
		UserName:    ec.UserName,
		Authorities: ec.Authorities,
		JTI:         ec.JTI,
		CallerUID:   ec.CallerUID,
		TenantID:    ec.TenantID,
	})
	// HopCount is the fabric's to own, never the caller's — stamp it
	// unconditionally rather than relying on Merge's fill-if-zero rule.
	env.HopCount = hop

	if !hasExecCtx {
		ctx = execctx.Install(ctx, execctx.ExecutionContext{
			RequestID:   env.RequestID,
			UserName:    env.UserName,
			Authorities: env.Authorities,
			JTI:         env.JTI,
			CallerUID:   env.CallerUID,
			TenantID:    env.TenantID,
			HopCount:    hop,
		})
	} else {
		ctx = execctx.WithHopCount(ctx, hop)
	}

	trail := callTrailFromContext(ctx)
	if len(trail) >= f.syncDepthLimit {
		return nil, NewCommandRecursionTooDeep(f.syncDepthLimit, trailTypeNames(trail))
	}
	ctx = appendCallTrail(ctx, callFrame{kind: kind, typeName: typeName})

	logger.DispatchStart(ctx, f.log, kind, typeName, env.UserName)
	start := time.Now()
	result, err := fn(ctx)
	logger.DispatchEnd(ctx, f.log, kind, typeName, env.UserName, time.Since(start), summarizeResult(result, err), err)
	return result, err
}

func typeName(v any) string {
	return reflect.TypeOf(v).String()
}
