package cqrs

import (
	"context"
	"reflect"
	"sync"
)

// CommandHandler executes exactly one concrete command type and returns
// an optional result.
type CommandHandler interface {
	Handle(ctx context.Context, cmd Command) (any, error)
}

// CommandHandlerFunc adapts a plain function into a CommandHandler.
type CommandHandlerFunc func(ctx context.Context, cmd Command) (any, error)

func (f CommandHandlerFunc) Handle(ctx context.Context, cmd Command) (any, error) {
	return f(ctx, cmd)
}

// CommandRegistry maps a command's concrete reflect.Type to exactly one
// handler.
type CommandRegistry struct {
	mu       sync.RWMutex
	handlers map[reflect.Type]CommandHandler
}

// NewCommandRegistry returns an empty, ready-to-use registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{handlers: make(map[reflect.Type]CommandHandler)}
}

// Register binds handler to the concrete type of prototype.
func (r *CommandRegistry) Register(prototype Command, handler CommandHandler) error {
	if prototype == nil || handler == nil {
		return NewContractViolation("cqrs: command registration requires a non-nil prototype and handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[reflect.TypeOf(prototype)] = handler
	return nil
}

// Lookup returns the handler registered for cmd's concrete type.
func (r *CommandRegistry) Lookup(cmd Command) (CommandHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[reflect.TypeOf(cmd)]
	return h, ok
}

// CommandBus dispatches a command to its single registered handler. It is
// deliberately thin — recursion-depth enforcement, logging, and
// ExecutionContext propagation are the interceptor's job (Facade.runSync
// in facade.go), composed in front of this bus by the Facade.
type CommandBus struct {
	registry *CommandRegistry
}

// NewCommandBus returns a bus backed by registry.
func NewCommandBus(registry *CommandRegistry) *CommandBus {
	return &CommandBus{registry: registry}
}

// Send looks up and invokes the handler registered for cmd's concrete
// type. Returns NoHandlerRegistered if none is registered.
func (b *CommandBus) Send(ctx context.Context, cmd Command) (any, error) {
	if cmd == nil {
		return nil, NewContractViolation("cqrs: command dispatch requires a non-nil command")
	}
	handler, ok := b.registry.Lookup(cmd)
	if !ok {
		return nil, NewNoHandlerRegistered("command", reflect.TypeOf(cmd).String())
	}
	return handler.Handle(ctx, cmd)
}
