package cqrs

import (
	"context"
	"reflect"
	"sync"
)

// QueryHandler executes exactly one concrete query type and returns its
// result. Queries are side-effect free by contract — the
// fabric does not enforce that, it is a handler-author obligation.
type QueryHandler interface {
	Handle(ctx context.Context, query Query) (any, error)
}

// QueryHandlerFunc adapts a plain function into a QueryHandler.
type QueryHandlerFunc func(ctx context.Context, query Query) (any, error)

func (f QueryHandlerFunc) Handle(ctx context.Context, query Query) (any, error) {
	return f(ctx, query)
}

// QueryRegistry maps a query's concrete reflect.Type to exactly one
// handler, same single-handler semantics as CommandRegistry.
type QueryRegistry struct {
	mu       sync.RWMutex
	handlers map[reflect.Type]QueryHandler
}

// NewQueryRegistry returns an empty, ready-to-use registry.
func NewQueryRegistry() *QueryRegistry {
	return &QueryRegistry{handlers: make(map[reflect.Type]QueryHandler)}
}

// Register binds handler to the concrete type of prototype.
func (r *QueryRegistry) Register(prototype Query, handler QueryHandler) error {
	if prototype == nil || handler == nil {
		return NewContractViolation("cqrs: query registration requires a non-nil prototype and handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[reflect.TypeOf(prototype)] = handler
	return nil
}

// Lookup returns the handler registered for query's concrete type.
func (r *QueryRegistry) Lookup(query Query) (QueryHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[reflect.TypeOf(query)]
	return h, ok
}

// QueryBus dispatches a query to its single registered handler.
type QueryBus struct {
	registry *QueryRegistry
}

// NewQueryBus returns a bus backed by registry.
func NewQueryBus(registry *QueryRegistry) *QueryBus {
	return &QueryBus{registry: registry}
}

// Send looks up and invokes the handler registered for query's concrete
// type. Returns NoHandlerRegistered if none is registered.
func (b *QueryBus) Send(ctx context.Context, query Query) (any, error) {
	if query == nil {
		return nil, NewContractViolation("cqrs: query dispatch requires a non-nil query")
	}
	handler, ok := b.registry.Lookup(query)
	if !ok {
		return nil, NewNoHandlerRegistered("query", reflect.TypeOf(query).String())
	}
	return handler.Handle(ctx, query)
}
