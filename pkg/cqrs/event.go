package cqrs

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is an immutable fact about state that has changed.
// Concrete event types embed BaseEvent to get EventID/EventType/OccurredOn
// and a mutable Envelope for free.
type DomainEvent interface {
	Envelope() *Envelope
	EventID() string
	EventType() string
	OccurredOn() time.Time
}

// BaseEvent is the embeddable implementation of the DomainEvent plumbing.
// EventID is a UUIDv7 — time-ordered, globally unique, and generated
// without any snowflake-style coordinator.
type BaseEvent struct {
	ID  string
	Typ string
	At  time.Time
	Env Envelope
}

// NewBaseEvent returns a BaseEvent stamped with a fresh time-ordered id,
// the given type name, and the current wall-clock time.
func NewBaseEvent(eventType string) BaseEvent {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return BaseEvent{ID: id.String(), Typ: eventType, At: time.Now().UTC()}
}

func (b *BaseEvent) EventID() string        { return b.ID }
func (b *BaseEvent) EventType() string      { return b.Typ }
func (b *BaseEvent) OccurredOn() time.Time  { return b.At }
func (b *BaseEvent) Envelope() *Envelope    { return &b.Env }

// Aggregate is the consistency boundary that accumulates pending domain
// events during command handling. PullEvents performs a
// destructive drain: the bounded ordered sequence is returned and cleared
// in one step so nothing is ever published twice from the same aggregate
// instance.
type Aggregate struct {
	mu      sync.Mutex
	pending []DomainEvent
}

// Record appends evt to the aggregate's pending event list, preserving
// insertion order.
func (a *Aggregate) Record(evt DomainEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = append(a.pending, evt)
}

// PullEvents drains and returns the pending events in insertion order.
// Calling it twice in a row returns the full list once, then nothing.
func (a *Aggregate) PullEvents() []DomainEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.pending
	a.pending = nil
	return out
}

// HasPendingEvents reports whether the aggregate has events awaiting drain.
func (a *Aggregate) HasPendingEvents() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending) > 0
}

// EventHandler reacts to a published DomainEvent. Name identifies the
// handler for per-handler idempotency keys and must be stable
// across process restarts.
type EventHandler interface {
	Name() string
	Handle(ctx context.Context, evt DomainEvent) error
}

// EventHandlerFunc adapts a plain function plus a stable name into an
// EventHandler, the same functional-adapter shape as http.HandlerFunc.
type EventHandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, evt DomainEvent) error
}

func (f EventHandlerFunc) Name() string { return f.HandlerName }
func (f EventHandlerFunc) Handle(ctx context.Context, evt DomainEvent) error {
	return f.Fn(ctx, evt)
}

// EventBus is the publication/subscription surface shared by the
// in-process bus (this file) and the persistent stream transport
// (pkg/stream). The repository aspect and the interceptor only depend on
// this interface, never on a concrete transport.
type EventBus interface {
	Publish(ctx context.Context, evt DomainEvent) error
	Subscribe(prototype DomainEvent, handler EventHandler) error
	// SubscribeInterface registers handler against every future event whose
	// concrete type implements the interface ifacePtr points to — pass a
	// typed nil, e.g. (*Shippable)(nil). Returns a configuration error if
	// ifacePtr is not a pointer to an interface type.
	SubscribeInterface(ifacePtr any, handler EventHandler) error
	Unsubscribe(prototype DomainEvent, handlerName string) error
}

// InProcessEventBus delivers events by walking the published event's
// concrete type, then every registered interface type it implements, in
// registration order.
type InProcessEventBus struct {
	mu         sync.RWMutex
	concrete   map[reflect.Type][]EventHandler
	ifaceOrder []reflect.Type
	ifaces     map[reflect.Type][]EventHandler
}

// NewInProcessEventBus returns an empty, ready-to-use in-process bus.
func NewInProcessEventBus() *InProcessEventBus {
	return &InProcessEventBus{
		concrete: make(map[reflect.Type][]EventHandler),
		ifaces:   make(map[reflect.Type][]EventHandler),
	}
}

// Ping always reports healthy — an in-process bus has no external
// dependency to probe. Satisfies httpx.HealthChecker for deployments that
// run without the persistent stream transport.
func (b *InProcessEventBus) Ping(ctx context.Context) error {
	return nil
}

// Subscribe registers handler against the concrete type of prototype.
// Delivery order for a given type is registration order.
func (b *InProcessEventBus) Subscribe(prototype DomainEvent, handler EventHandler) error {
	if prototype == nil || handler == nil {
		return NewContractViolation("cqrs: subscribe requires a non-nil prototype and handler")
	}
	t := reflect.TypeOf(prototype)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.concrete[t] = append(b.concrete[t], handler)
	return nil
}

// SubscribeInterface registers handler against every event type that
// implements the interface ifacePtr points to.
func (b *InProcessEventBus) SubscribeInterface(ifacePtr any, handler EventHandler) error {
	if ifacePtr == nil || handler == nil {
		return NewContractViolation("cqrs: subscribe requires a non-nil prototype and handler")
	}
	t := reflect.TypeOf(ifacePtr)
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Interface {
		return NewContractViolation("cqrs: SubscribeInterface requires a pointer-to-interface, e.g. (*MyInterface)(nil)")
	}
	ifaceType := t.Elem()
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, seen := b.ifaces[ifaceType]; !seen {
		b.ifaceOrder = append(b.ifaceOrder, ifaceType)
	}
	b.ifaces[ifaceType] = append(b.ifaces[ifaceType], handler)
	return nil
}

// Unsubscribe removes the first handler registered under the given name
// for prototype's concrete type. No-op if no such handler is registered.
func (b *InProcessEventBus) Unsubscribe(prototype DomainEvent, handlerName string) error {
	if prototype == nil {
		return NewContractViolation("cqrs: unsubscribe requires a non-nil prototype")
	}
	t := reflect.TypeOf(prototype)
	b.mu.Lock()
	defer b.mu.Unlock()
	handlers := b.concrete[t]
	for i, h := range handlers {
		if h.Name() == handlerName {
			b.concrete[t] = append(handlers[:i], handlers[i+1:]...)
			return nil
		}
	}
	return nil
}

// Publish invokes every handler matched by the event's concrete type and
// every matching registered interface, in registration order. A failure
// from one handler never prevents invocation of the rest; all failures
// are joined into a single returned error.
func (b *InProcessEventBus) Publish(ctx context.Context, evt DomainEvent) error {
	if evt == nil {
		return NewContractViolation("cqrs: publish requires a non-nil event")
	}
	t := reflect.TypeOf(evt)

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.concrete[t]...)
	for _, ifaceType := range b.ifaceOrder {
		if t.Implements(ifaceType) {
			handlers = append(handlers, b.ifaces[ifaceType]...)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h.Handle(ctx, evt); err != nil {
			errs = append(errs, NewHandlerFailure(evt.EventType(), h.Name(), err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
