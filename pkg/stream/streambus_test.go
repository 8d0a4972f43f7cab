package stream

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sodacore/sodacore/pkg/config"
	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/pkg/logger"
)

func testBusLogger() logger.Logger {
	return logger.New(&config.Config{LogLevel: "error"})
}

type orderPlaced struct {
	cqrs.BaseEvent
	OrderID string
}

func newOrderPlaced(orderID string) *orderPlaced {
	return &orderPlaced{BaseEvent: cqrs.NewBaseEvent("test.order.placed"), OrderID: orderID}
}

func newTestBus(t *testing.T, idempotency IdempotencyStore, maxRetries int) (*Bus, string) {
	t.Helper()
	client := newTestRedisClient(t)
	prefix := fmt.Sprintf("test.stream.%d", time.Now().UnixNano())
	bus := NewBus(client, NewCodec(), idempotency, testBusLogger(), Options{
		StreamPrefix: prefix,
		GroupName:    "test-group",
		ConsumerName: "test-consumer",
		InitialDelay: 5 * time.Millisecond,
		MaxRetries:   maxRetries,
		ReadCount:    10,
		PollTimeout:  200 * time.Millisecond,
	})
	return bus, prefix
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestBus_PublishAndConsume(t *testing.T) {
	bus, _ := newTestBus(t, nil, 2)

	var received atomic.Int32
	if err := bus.Subscribe(&orderPlaced{}, cqrs.EventHandlerFunc{
		HandlerName: "receiver",
		Fn: func(ctx context.Context, evt cqrs.DomainEvent) error {
			received.Add(1)
			return nil
		},
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := bus.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer bus.Wait()

	if err := bus.Publish(context.Background(), newOrderPlaced("o-1")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool { return received.Load() == 1 })
	cancel()
}

// TestBus_RetriesThenDeadLetters is the retry-then-DLQ scenario: a handler
// that always fails should be retried MaxRetries times, then the message
// moved to the stream's .dlq sibling instead of retried forever.
func TestBus_RetriesThenDeadLetters(t *testing.T) {
	bus, prefix := newTestBus(t, nil, 2)

	var attempts atomic.Int32
	boom := errors.New("handler always fails")
	if err := bus.Subscribe(&orderPlaced{}, cqrs.EventHandlerFunc{
		HandlerName: "always-fails",
		Fn: func(ctx context.Context, evt cqrs.DomainEvent) error {
			attempts.Add(1)
			return boom
		},
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := bus.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer bus.Wait()

	if err := bus.Publish(context.Background(), newOrderPlaced("o-2")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// MaxRetries=2 means 3 total attempts (the original try plus 2 retries).
	waitFor(t, 5*time.Second, func() bool { return attempts.Load() == 3 })

	dlqStream := prefix + ".test.order.placed.dlq"
	waitFor(t, 3*time.Second, func() bool {
		length, err := bus.client.XLen(context.Background(), dlqStream).Result()
		return err == nil && length == 1
	})
	cancel()
}

// TestBus_PerHandlerIdempotency_BothHandlersRunOnASingleDelivery checks
// that two handlers subscribed to the same event type both fire exactly
// once for one delivery. It doesn't exercise a failure or a real
// redelivery — see TestBus_Deliver_RedeliveryRespectsPerHandlerIdempotency
// for that.
func TestBus_PerHandlerIdempotency_BothHandlersRunOnASingleDelivery(t *testing.T) {
	client := newTestRedisClient(t)
	idempotency := NewRedisIdempotencyStore(client, fmt.Sprintf("test.idemp.bus.%d", time.Now().UnixNano()), time.Minute)
	bus, _ := newTestBus(t, idempotency, 1)

	var aCalls, bCalls atomic.Int32
	if err := bus.Subscribe(&orderPlaced{}, cqrs.EventHandlerFunc{
		HandlerName: "handler-a",
		Fn: func(ctx context.Context, evt cqrs.DomainEvent) error {
			aCalls.Add(1)
			return nil
		},
	}); err != nil {
		t.Fatalf("subscribe handler-a: %v", err)
	}
	if err := bus.Subscribe(&orderPlaced{}, cqrs.EventHandlerFunc{
		HandlerName: "handler-b",
		Fn: func(ctx context.Context, evt cqrs.DomainEvent) error {
			bCalls.Add(1)
			return nil
		},
	}); err != nil {
		t.Fatalf("subscribe handler-b: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := bus.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer bus.Wait()

	if err := bus.Publish(context.Background(), newOrderPlaced("o-3")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool { return aCalls.Load() == 1 && bCalls.Load() == 1 })
	cancel()
}

// TestBus_Deliver_UnregisteredTypeWarnsAndAcksWithoutDeadLettering is the
// expected fan-out miss: a message for an event type this consumer never
// registered a concrete type for must be dropped with a warning and
// acked, never routed to the stream's dead-letter sibling.
func TestBus_Deliver_UnregisteredTypeWarnsAndAcksWithoutDeadLettering(t *testing.T) {
	bus, prefix := newTestBus(t, nil, 2)
	client := bus.client

	streamName := prefix + ".test.order.placed"
	if err := bus.ensureGroup(context.Background(), streamName); err != nil {
		t.Fatalf("ensure group: %v", err)
	}

	evt := newOrderPlaced("o-unregistered")
	fields, err := EncodeMessage(evt)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := client.XAdd(context.Background(), &redis.XAddArgs{Stream: streamName, Values: fields}).Err(); err != nil {
		t.Fatalf("XAdd: %v", err)
	}

	res, err := client.XReadGroup(context.Background(), &redis.XReadGroupArgs{
		Group:    bus.opts.GroupName,
		Consumer: bus.opts.ConsumerName,
		Streams:  []string{streamName, ">"},
		Count:    1,
		Block:    time.Second,
	}).Result()
	if err != nil || len(res) == 0 || len(res[0].Messages) == 0 {
		t.Fatalf("read: %v", err)
	}

	// bus never called Subscribe for orderPlaced, so its codec has no
	// factory registered for "test.order.placed" — exactly the miss this
	// test targets.
	sub := subscription{streamName: streamName}
	bus.deliver(context.Background(), sub, res[0].Messages[0])

	pending, err := client.XPending(context.Background(), streamName, bus.opts.GroupName).Result()
	if err != nil {
		t.Fatalf("XPending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected the message to be acked, got %d still pending", pending.Count)
	}

	dlqStream := streamName + bus.opts.DeadLetterSuffix
	length, err := client.XLen(context.Background(), dlqStream).Result()
	if err != nil {
		t.Fatalf("XLen dlq: %v", err)
	}
	if length != 0 {
		t.Fatalf("expected no dead-letter entry for an unregistered type, got %d", length)
	}
}

// TestBus_Deliver_RedeliveryRespectsPerHandlerIdempotency drives a real
// first-delivery/redelivery pair: handler-a succeeds on the first
// delivery; handler-b's retry loop is interrupted by context cancellation
// (standing in for a consumer shutdown mid-processing), so deliver must
// leave the message unacked. On redelivery, handler-a's per-handler
// SUCCESS record must make it skip, while handler-b gets a fresh attempt.
func TestBus_Deliver_RedeliveryRespectsPerHandlerIdempotency(t *testing.T) {
	client := newTestRedisClient(t)
	idempotency := NewRedisIdempotencyStore(client, fmt.Sprintf("test.idemp.redelivery.%d", time.Now().UnixNano()), time.Minute)
	bus, prefix := newTestBus(t, idempotency, 5)

	var aCalls, bCalls atomic.Int32
	interrupted := make(chan struct{})
	if err := bus.Subscribe(&orderPlaced{}, cqrs.EventHandlerFunc{
		HandlerName: "handler-a",
		Fn: func(ctx context.Context, evt cqrs.DomainEvent) error {
			aCalls.Add(1)
			return nil
		},
	}); err != nil {
		t.Fatalf("subscribe handler-a: %v", err)
	}
	if err := bus.Subscribe(&orderPlaced{}, cqrs.EventHandlerFunc{
		HandlerName: "handler-b",
		Fn: func(ctx context.Context, evt cqrs.DomainEvent) error {
			n := bCalls.Add(1)
			if n == 1 {
				close(interrupted)
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		},
	}); err != nil {
		t.Fatalf("subscribe handler-b: %v", err)
	}

	if err := bus.Publish(context.Background(), newOrderPlaced("o-redelivery")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	streamName := prefix + ".test.order.placed"
	if err := bus.ensureGroup(context.Background(), streamName); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	subs := bus.subscriptions()
	if len(subs) != 1 {
		t.Fatalf("expected exactly one subscription, got %d", len(subs))
	}
	sub := subs[0]

	res, err := client.XReadGroup(context.Background(), &redis.XReadGroupArgs{
		Group:    bus.opts.GroupName,
		Consumer: bus.opts.ConsumerName,
		Streams:  []string{streamName, ">"},
		Count:    1,
		Block:    time.Second,
	}).Result()
	if err != nil || len(res) == 0 || len(res[0].Messages) == 0 {
		t.Fatalf("read first delivery: %v", err)
	}
	xmsg := res[0].Messages[0]

	deliverCtx, cancel := context.WithCancel(context.Background())
	go func() {
		<-interrupted
		cancel()
	}()
	bus.deliver(deliverCtx, sub, xmsg)
	cancel()

	if got := aCalls.Load(); got != 1 {
		t.Fatalf("expected handler-a to run once on first delivery, got %d", got)
	}
	if got := bCalls.Load(); got != 1 {
		t.Fatalf("expected handler-b to attempt once before being interrupted, got %d", got)
	}

	pending, err := client.XPending(context.Background(), streamName, bus.opts.GroupName).Result()
	if err != nil {
		t.Fatalf("XPending: %v", err)
	}
	if pending.Count != 1 {
		t.Fatalf("expected 1 pending entry after an interrupted delivery, got %d", pending.Count)
	}

	// Redelivery: handler-a's per-handler record already shows SUCCESS so
	// it must be skipped; handler-b gets a fresh, uninterrupted attempt.
	bus.deliver(context.Background(), sub, xmsg)

	if got := aCalls.Load(); got != 1 {
		t.Fatalf("expected handler-a to stay at 1 call across redelivery, got %d", got)
	}
	if got := bCalls.Load(); got != 2 {
		t.Fatalf("expected handler-b to be invoked again on redelivery, got %d", got)
	}

	pending, err = client.XPending(context.Background(), streamName, bus.opts.GroupName).Result()
	if err != nil {
		t.Fatalf("XPending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("expected the message acked once redelivery succeeds, got %d still pending", pending.Count)
	}
}
