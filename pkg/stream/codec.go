// Package stream is the persistent, at-least-once transport for domain
// events: a Redis Streams-backed EventBus with consumer groups, per
// (event, handler) idempotency, exponential-backoff retries, and
// dead-lettering. It satisfies cqrs.EventBus so the Facade and the
// repository event aspect can publish through it exactly as they would
// through the in-process bus.
package stream

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/sodacore/sodacore/pkg/cqrs"
)

// Codec maps a domain event's type name to a zero-value factory so
// messages read off a stream can be unmarshalled into their concrete
// Go type. Registration happens once at startup, alongside Subscribe —
// the same "explicit registration over start-up reflection scanning"
// choice made for the in-process registries (pkg/cqrs).
type Codec struct {
	mu        sync.RWMutex
	factories map[string]func() cqrs.DomainEvent
	types     map[string]reflect.Type
}

// NewCodec returns an empty, ready-to-use codec.
func NewCodec() *Codec {
	return &Codec{
		factories: make(map[string]func() cqrs.DomainEvent),
		types:     make(map[string]reflect.Type),
	}
}

// RegisterType records prototype's concrete type under its EventType
// name, so later New calls for that name can produce a fresh instance.
func (c *Codec) RegisterType(prototype cqrs.DomainEvent) error {
	if prototype == nil {
		return cqrs.NewContractViolation("stream: RegisterType requires a non-nil prototype")
	}
	name := prototype.EventType()
	t := reflect.TypeOf(prototype)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[name] = t
	c.factories[name] = func() cqrs.DomainEvent {
		v := reflect.New(t)
		return v.Interface().(cqrs.DomainEvent)
	}
	return nil
}

// IsRegistered reports whether eventType has a factory registered. Callers
// on the delivery path use this to tell an expected "this consumer never
// subscribed to that type" miss apart from a genuine decode failure, which
// New alone can't distinguish once it has already failed.
func (c *Codec) IsRegistered(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.factories[eventType]
	return ok
}

// New returns a fresh zero-value instance for the given event type name.
// It fails only for an unregistered type, reported as
// KindSerializationFailure — the same Kind Hydrate reports when a
// registered type's payload does not decode — so callers that need to tell
// the two apart check IsRegistered first.
func (c *Codec) New(eventType string) (cqrs.DomainEvent, error) {
	c.mu.RLock()
	factory, ok := c.factories[eventType]
	c.mu.RUnlock()
	if !ok {
		return nil, cqrs.NewSerializationFailure("decode", eventType, fmt.Errorf("no type registered for %q", eventType))
	}
	return factory(), nil
}

// TypeImplements reports whether the registered concrete type for
// eventType implements the given interface type.
func (c *Codec) TypeImplements(eventType string, ifaceType reflect.Type) bool {
	c.mu.RLock()
	t, ok := c.types[eventType]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	return reflect.PointerTo(t).Implements(ifaceType)
}

// RegisteredTypeNames returns every event type name registered so far.
func (c *Codec) RegisteredTypeNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	return names
}
