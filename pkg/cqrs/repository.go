package cqrs

import (
	"context"

	"github.com/sodacore/sodacore/pkg/execctx"
	"github.com/sodacore/sodacore/pkg/txn"
)

// EventSource is anything an aggregate-mutating repository method can
// drain pending events from — satisfied by *Aggregate and by any type
// that embeds it.
type EventSource interface {
	PullEvents() []DomainEvent
}

// InterceptMutation is the repository event aspect. Go has no
// AOP/reflection-proxying idiom, so rather than an implicit interceptor
// around every repository method, infrastructure repositories call this
// explicitly from inside their own Save/Update/Delete/Operate methods,
// wrapping the actual persistence call in mutate:
//
//	func (r *orderRepository) Save(ctx context.Context, o *Order) error {
//	    return cqrs.InterceptMutation(ctx, o, r.bus, func(ctx context.Context) error {
//	        return r.db.save(ctx, o)
//	    })
//	}
//
// On success, pending events are drained from source and enriched with
// the caller's ExecutionContext. If ctx carries an active txn.Scope,
// publication is deferred until that scope commits (and dropped on
// rollback); otherwise events publish immediately, inline.
func InterceptMutation(ctx context.Context, source EventSource, bus EventBus, mutate func(context.Context) error) error {
	if err := mutate(ctx); err != nil {
		return err
	}

	events := source.PullEvents()
	if len(events) == 0 {
		return nil
	}

	ec := execctx.FromContextOrEmpty(ctx)
	// Publishing a drained event is itself a dispatch one hop past the
	// command handler that produced it.
	eventHop := ec.HopCount + 1
	for _, evt := range events {
		evt.Envelope().Merge(Envelope{
			RequestID:   ec.RequestID,
			UserName:    ec.UserName,
			Authorities: ec.Authorities,
			JTI:         ec.JTI,
			CallerUID:   ec.CallerUID,
			TenantID:    ec.TenantID,
			HopCount:    eventHop,
		})
	}

	scope, hasScope := txn.ScopeFromContext(ctx)
	if !hasScope || scope == nil {
		publishCtx := execctx.WithHopCount(ctx, eventHop)
		for _, evt := range events {
			if err := bus.Publish(publishCtx, evt); err != nil {
				return NewTransactionalPublishAborted("inline publish failed", err)
			}
		}
		return nil
	}

	publishCtx := execctx.WithHopCount(context.WithoutCancel(ctx), eventHop)
	scope.RegisterAfterCommit(func() {
		for _, evt := range events {
			_ = bus.Publish(publishCtx, evt)
		}
	})
	return nil
}
