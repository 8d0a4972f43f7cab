package stream

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/pkg/execctx"
	"github.com/sodacore/sodacore/pkg/logger"
)

// Options configures a Bus. Zero values fall back to the same defaults
// as the soda.event.* configuration surface (pkg/config).
type Options struct {
	StreamPrefix     string
	GroupName        string
	ConsumerName     string
	MaxLen           int64
	PollTimeout      time.Duration
	MaxRetries       int
	InitialDelay     time.Duration
	BackoffFactor    float64
	DeadLetterSuffix string
	ReadCount        int64

	// ClaimMinIdle is how long a delivered-but-unacked message sits in the
	// group's pending list before reclaimPending hands it to this consumer
	// again — the broker-level half of redelivery, for messages left
	// unacked because a handler's retry loop was interrupted rather than
	// exhausted.
	ClaimMinIdle time.Duration
	// ClaimInterval is how often consumeLoop checks for reclaimable
	// pending entries.
	ClaimInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.StreamPrefix == "" {
		o.StreamPrefix = "soda.event"
	}
	if o.GroupName == "" {
		o.GroupName = "soda-core"
	}
	if o.ConsumerName == "" {
		o.ConsumerName = fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	if o.MaxLen == 0 {
		o.MaxLen = 100000
	}
	if o.PollTimeout == 0 {
		o.PollTimeout = 5 * time.Second
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 5
	}
	if o.InitialDelay == 0 {
		o.InitialDelay = time.Second
	}
	if o.BackoffFactor == 0 {
		o.BackoffFactor = 2.0
	}
	if o.DeadLetterSuffix == "" {
		o.DeadLetterSuffix = ".dlq"
	}
	if o.ReadCount == 0 {
		o.ReadCount = 10
	}
	if o.ClaimMinIdle == 0 {
		o.ClaimMinIdle = 30 * time.Second
	}
	if o.ClaimInterval == 0 {
		o.ClaimInterval = 10 * time.Second
	}
	return o
}

type subscription struct {
	streamName string
	handlers   []cqrs.EventHandler
}

// Bus is the persistent, Redis-Streams-backed cqrs.EventBus. Publish
// writes via XADD; Start spawns one consumer-group reader goroutine per
// subscribed stream, each retrying a failing handler with exponential
// backoff before dead-lettering the message, and periodically reclaiming
// pending entries left unacked by an interrupted delivery so they get a
// real redelivery instead of sitting stuck in the group's PEL.
type Bus struct {
	client      *redis.Client
	codec       *Codec
	idempotency IdempotencyStore
	log         logger.Logger
	opts        Options

	mu            sync.RWMutex
	concrete      map[string][]cqrs.EventHandler // keyed by event type name
	ifaceOrder    []reflect.Type
	ifaceHandlers map[reflect.Type][]cqrs.EventHandler

	wg sync.WaitGroup
}

// NewBus wires a persistent stream bus over an existing Redis client.
func NewBus(client *redis.Client, codec *Codec, idempotency IdempotencyStore, log logger.Logger, opts Options) *Bus {
	return &Bus{
		client:        client,
		codec:         codec,
		idempotency:   idempotency,
		log:           log,
		opts:          opts.withDefaults(),
		concrete:      make(map[string][]cqrs.EventHandler),
		ifaceHandlers: make(map[reflect.Type][]cqrs.EventHandler),
	}
}

// Ping checks connectivity to the backing Redis instance, satisfying
// httpx.HealthChecker.
func (b *Bus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *Bus) streamName(eventType string) string {
	return b.opts.StreamPrefix + "." + eventType
}

func (b *Bus) dlqName(streamName string) string {
	return streamName + b.opts.DeadLetterSuffix
}

// Publish marshals evt and appends it to its event type's stream.
func (b *Bus) Publish(ctx context.Context, evt cqrs.DomainEvent) error {
	if evt == nil {
		return cqrs.NewContractViolation("stream: publish requires a non-nil event")
	}
	fields, err := EncodeMessage(evt)
	if err != nil {
		return err
	}
	stream := b.streamName(evt.EventType())
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.opts.MaxLen,
		Approx: true,
		Values: fields,
	}).Err(); err != nil {
		return cqrs.NewTransportFailure("XADD", err)
	}
	return nil
}

// Subscribe registers handler against the stream backing prototype's
// concrete event type, and records the type in the codec so consumed
// messages can be decoded back into it.
func (b *Bus) Subscribe(prototype cqrs.DomainEvent, handler cqrs.EventHandler) error {
	if prototype == nil || handler == nil {
		return cqrs.NewContractViolation("stream: subscribe requires a non-nil prototype and handler")
	}
	if err := b.codec.RegisterType(prototype); err != nil {
		return err
	}
	name := prototype.EventType()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.concrete[name] = append(b.concrete[name], handler)
	return nil
}

// SubscribeInterface registers handler against every event type already
// (or later) registered via Subscribe/RegisterType whose concrete type
// implements the interface ifacePtr points to. Because stream routing is
// per concrete event type, resolution happens once at Start.
func (b *Bus) SubscribeInterface(ifacePtr any, handler cqrs.EventHandler) error {
	if ifacePtr == nil || handler == nil {
		return cqrs.NewContractViolation("stream: subscribe requires a non-nil prototype and handler")
	}
	t := reflect.TypeOf(ifacePtr)
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Interface {
		return cqrs.NewContractViolation("stream: SubscribeInterface requires a pointer-to-interface, e.g. (*MyInterface)(nil)")
	}
	ifaceType := t.Elem()
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, seen := b.ifaceHandlers[ifaceType]; !seen {
		b.ifaceOrder = append(b.ifaceOrder, ifaceType)
	}
	b.ifaceHandlers[ifaceType] = append(b.ifaceHandlers[ifaceType], handler)
	return nil
}

// Unsubscribe removes the first handler with the given name registered
// for prototype's concrete event type.
func (b *Bus) Unsubscribe(prototype cqrs.DomainEvent, handlerName string) error {
	if prototype == nil {
		return cqrs.NewContractViolation("stream: unsubscribe requires a non-nil prototype")
	}
	name := prototype.EventType()
	b.mu.Lock()
	defer b.mu.Unlock()
	handlers := b.concrete[name]
	for i, h := range handlers {
		if h.Name() == handlerName {
			b.concrete[name] = append(handlers[:i], handlers[i+1:]...)
			return nil
		}
	}
	return nil
}

// subscriptions resolves the final stream→handlers map, folding in
// interface-based registrations resolved against the codec's known
// concrete types.
func (b *Bus) subscriptions() []subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	byStream := make(map[string][]cqrs.EventHandler, len(b.concrete))
	for name, handlers := range b.concrete {
		byStream[name] = append(byStream[name], handlers...)
	}
	for _, ifaceType := range b.ifaceOrder {
		for _, typeName := range b.codec.RegisteredTypeNames() {
			if b.codec.TypeImplements(typeName, ifaceType) {
				byStream[typeName] = append(byStream[typeName], b.ifaceHandlers[ifaceType]...)
			}
		}
	}

	subs := make([]subscription, 0, len(byStream))
	for name, handlers := range byStream {
		subs = append(subs, subscription{streamName: b.streamName(name), handlers: handlers})
	}
	return subs
}

// Start ensures a consumer group exists for every subscribed stream and
// launches one blocking-read goroutine per stream. It returns once every
// stream's group has been created (or confirmed to exist); consumption
// continues in the background until ctx is cancelled.
func (b *Bus) Start(ctx context.Context) error {
	subs := b.subscriptions()
	for _, sub := range subs {
		if err := b.ensureGroup(ctx, sub.streamName); err != nil {
			return err
		}
		b.wg.Add(1)
		go b.consumeLoop(ctx, sub)
	}
	return nil
}

// Wait blocks until every consumer loop started by Start has exited —
// which only happens once ctx is cancelled.
func (b *Bus) Wait() {
	b.wg.Wait()
}

func (b *Bus) ensureGroup(ctx context.Context, streamName string) error {
	err := b.client.XGroupCreateMkStream(ctx, streamName, b.opts.GroupName, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return cqrs.NewTransportFailure("XGROUP CREATE", err)
	}
	return nil
}

func (b *Bus) consumeLoop(ctx context.Context, sub subscription) {
	defer b.wg.Done()
	var lastClaim time.Time
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if time.Since(lastClaim) >= b.opts.ClaimInterval {
			b.reclaimPending(ctx, sub)
			lastClaim = time.Now()
		}

		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.opts.GroupName,
			Consumer: b.opts.ConsumerName,
			Streams:  []string{sub.streamName, ">"},
			Count:    b.opts.ReadCount,
			Block:    b.opts.PollTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			b.log.ErrorContext(ctx, "stream read failed", "stream", sub.streamName, "error", err)
			continue
		}

		for _, streamRes := range res {
			for _, xmsg := range streamRes.Messages {
				b.deliver(ctx, sub, xmsg)
			}
		}
	}
}

// reclaimPending claims entries that were delivered to this group but have
// sat unacked for longer than ClaimMinIdle, and redelivers them through
// deliver. This is what actually closes the loop on a message deliver left
// unacked: without reclaiming idle pending entries, nothing would ever
// read them again since XReadGroup's ">" id only returns messages never
// yet delivered to any consumer in the group.
func (b *Bus) reclaimPending(ctx context.Context, sub subscription) {
	cursor := "0-0"
	for {
		msgs, next, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   sub.streamName,
			Group:    b.opts.GroupName,
			Consumer: b.opts.ConsumerName,
			MinIdle:  b.opts.ClaimMinIdle,
			Start:    cursor,
			Count:    b.opts.ReadCount,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				b.log.ErrorContext(ctx, "stream pending reclaim failed", "stream", sub.streamName, "error", err)
			}
			return
		}
		for _, xmsg := range msgs {
			b.deliver(ctx, sub, xmsg)
		}
		if next == "0-0" || len(msgs) == 0 {
			return
		}
		cursor = next
	}
}

func (b *Bus) deliver(ctx context.Context, sub subscription, xmsg redis.XMessage) {
	decoded, err := DecodeFields(xmsg.ID, xmsg.Values)
	if err != nil {
		b.log.ErrorContext(ctx, "stream message decode failed", "stream", sub.streamName, "id", xmsg.ID, "error", err)
		_ = deadLetter(ctx, b.client, b.dlqName(sub.streamName), xmsg.Values, "decode_failure", sub.streamName, xmsg.ID)
		b.ack(ctx, sub.streamName, xmsg.ID)
		return
	}

	// A consumer only reads streams it registered a concrete type for, but
	// consumer groups are shared infrastructure — a message encoded by a
	// newer or differently-wired producer for a type this process never
	// registered is an expected fan-out miss, not a structural failure.
	// Warn and drop it; it never earns a dead-letter entry.
	if !b.codec.IsRegistered(decoded.EventType) {
		b.log.WarnContext(ctx, "no concrete type registered for stream event, dropping", "stream", sub.streamName, "id", xmsg.ID, "event_type", decoded.EventType)
		b.ack(ctx, sub.streamName, xmsg.ID)
		return
	}

	evt, err := decoded.Hydrate(b.codec)
	if err != nil {
		b.log.ErrorContext(ctx, "stream message hydrate failed", "stream", sub.streamName, "id", xmsg.ID, "error", err)
		_ = deadLetter(ctx, b.client, b.dlqName(sub.streamName), xmsg.Values, "hydrate_failure", sub.streamName, xmsg.ID)
		b.ack(ctx, sub.streamName, xmsg.ID)
		return
	}

	if b.idempotency != nil {
		status, err := b.idempotency.BeginEvent(ctx, evt.EventID())
		if err != nil {
			b.log.ErrorContext(ctx, "event-level idempotency check failed", "event_id", evt.EventID(), "error", err)
		} else {
			switch status {
			case StatusSuccess:
				b.log.InfoContext(ctx, "event already fully processed, dropping redelivery", "stream", sub.streamName, "id", xmsg.ID, "event_id", evt.EventID())
				b.ack(ctx, sub.streamName, xmsg.ID)
				return
			case StatusProcessing:
				b.log.WarnContext(ctx, "event already being processed by another delivery, leaving unacked", "stream", sub.streamName, "id", xmsg.ID, "event_id", evt.EventID())
				return
			}
		}
	}

	consumerCtx := execctx.MarkStreamConsumer(ctx)
	consumerCtx = execctx.WithHopCount(consumerCtx, execctx.HopCount(consumerCtx)+1)

	allResolved := true
	for _, handler := range sub.handlers {
		if !b.deliverOne(consumerCtx, sub, xmsg, evt, handler) {
			allResolved = false
		}
	}

	if !allResolved {
		if b.idempotency != nil {
			_ = b.idempotency.MarkEventFailed(context.WithoutCancel(ctx), evt.EventID())
		}
		// A handler's retry loop was interrupted rather than exhausted —
		// it made no terminal progress, so leave the message unacked for
		// reclaimPending (or another live consumer) to pick back up.
		// Handlers that already reached SUCCESS or were dead-lettered
		// recorded that per-handler, so the redelivery won't repeat them.
		return
	}

	if b.idempotency != nil {
		_ = b.idempotency.MarkEventSuccess(ctx, evt.EventID())
	}
	b.ack(ctx, sub.streamName, xmsg.ID)
}

// deliverOne invokes handler for evt, retrying on failure up to MaxRetries
// with exponential backoff. It returns whether this delivery reached a
// terminal outcome for this handler (success or dead-lettered) — false
// means the attempt was interrupted (e.g. ctx cancelled by shutdown)
// before it could, and deliver must not ack the message on its account.
func (b *Bus) deliverOne(ctx context.Context, sub subscription, xmsg redis.XMessage, evt cqrs.DomainEvent, handler cqrs.EventHandler) bool {
	if b.idempotency != nil {
		alreadyDone, err := b.idempotency.BeginProcessing(ctx, evt.EventID(), handler.Name())
		if err != nil {
			b.log.ErrorContext(ctx, "idempotency check failed", "event_id", evt.EventID(), "handler", handler.Name(), "error", err)
		} else if alreadyDone {
			b.log.InfoContext(ctx, "skipping already-processed delivery", "event_id", evt.EventID(), "handler", handler.Name())
			return true
		}
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = b.opts.InitialDelay
	exp.Multiplier = b.opts.BackoffFactor
	exp.RandomizationFactor = 0
	exp.MaxInterval = b.opts.InitialDelay * time.Duration(1<<10)
	exp.MaxElapsedTime = 0
	policy := backoff.WithMaxRetries(exp, uint64(b.opts.MaxRetries))

	err := backoff.Retry(func() error {
		return handler.Handle(ctx, evt)
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		if ctx.Err() != nil {
			b.log.WarnContext(ctx, "handler delivery interrupted, leaving for redelivery", "event_id", evt.EventID(), "handler", handler.Name(), "error", err)
			return false
		}
		if b.idempotency != nil {
			_ = b.idempotency.MarkFailed(ctx, evt.EventID(), handler.Name())
		}
		b.log.ErrorContext(ctx, "handler exhausted retries, dead-lettering", "event_id", evt.EventID(), "handler", handler.Name(), "error", err)
		_ = deadLetter(ctx, b.client, b.dlqName(sub.streamName), xmsg.Values, err.Error(), sub.streamName, xmsg.ID)
		return true
	}

	if b.idempotency != nil {
		_ = b.idempotency.MarkSuccess(ctx, evt.EventID(), handler.Name())
	}
	return true
}

func (b *Bus) ack(ctx context.Context, streamName, id string) {
	if err := b.client.XAck(ctx, streamName, b.opts.GroupName, id).Err(); err != nil {
		b.log.ErrorContext(ctx, "stream ack failed", "stream", streamName, "id", id, "error", err)
	}
}
