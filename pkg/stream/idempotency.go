package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status is the lifecycle state of one (event, handler) processing
// attempt.
type Status string

const (
	StatusUnknown    Status = ""
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
)

// IdempotencyStore tracks per-(event, handler) processing status so
// at-least-once redelivery never runs a handler twice for the same
// event. The Redis-backed implementation below is the only one this
// system ships; the interface exists so tests can swap in a fake.
//
// BeginEvent/MarkEventSuccess/MarkEventFailed track a second, coarser
// record keyed by eventID alone — the precheck deliver runs before
// invoking any handler at all, so a redelivery of a message every
// handler already finished can be dropped with a single lookup instead
// of one per handler.
type IdempotencyStore interface {
	BeginProcessing(ctx context.Context, eventID, handlerName string) (alreadyDone bool, err error)
	MarkSuccess(ctx context.Context, eventID, handlerName string) error
	MarkFailed(ctx context.Context, eventID, handlerName string) error
	GetStatus(ctx context.Context, eventID, handlerName string) (Status, error)
	CleanupExpired(ctx context.Context) (scanned int, err error)

	BeginEvent(ctx context.Context, eventID string) (Status, error)
	MarkEventSuccess(ctx context.Context, eventID string) error
	MarkEventFailed(ctx context.Context, eventID string) error
}

// eventLevelHandler is the reserved handler-name slot the event-level
// record is stored under — no real EventHandler.Name() is allowed to
// collide with it in practice since handler names are dotted identifiers.
const eventLevelHandler = "@event"

// RedisIdempotencyStore keys each record as "<prefix>:<eventID>:<handler>"
// with a TTL matching the configured expiry window. Grounded on the
// consumer's de-duplication map in the retrieved Redis Streams worker
// example, generalized here to a persistent, TTL-backed store instead of
// an in-memory set so it survives process restarts.
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisIdempotencyStore returns a store keyed under prefix with
// records expiring after ttl.
func NewRedisIdempotencyStore(client *redis.Client, prefix string, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisIdempotencyStore) key(eventID, handlerName string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, eventID, handlerName)
}

// BeginProcessing claims the (event, handler) pair for processing. If a
// prior attempt already succeeded, alreadyDone is true and the caller
// must skip invoking the handler. A prior FAILED or stale PROCESSING
// record does not block a new attempt — at-least-once delivery means
// retries are expected to reclaim it.
func (s *RedisIdempotencyStore) BeginProcessing(ctx context.Context, eventID, handlerName string) (bool, error) {
	key := s.key(eventID, handlerName)
	ok, err := s.client.SetNX(ctx, key, string(StatusProcessing), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("stream: idempotency BeginProcessing: %w", err)
	}
	if ok {
		return false, nil
	}

	status, err := s.GetStatus(ctx, eventID, handlerName)
	if err != nil {
		return false, err
	}
	if status == StatusSuccess {
		return true, nil
	}
	// FAILED or PROCESSING: reclaim the slot for this attempt.
	if err := s.client.Set(ctx, key, string(StatusProcessing), s.ttl).Err(); err != nil {
		return false, fmt.Errorf("stream: idempotency reclaim: %w", err)
	}
	return false, nil
}

// MarkSuccess records a completed handler invocation.
func (s *RedisIdempotencyStore) MarkSuccess(ctx context.Context, eventID, handlerName string) error {
	if err := s.client.Set(ctx, s.key(eventID, handlerName), string(StatusSuccess), s.ttl).Err(); err != nil {
		return fmt.Errorf("stream: idempotency MarkSuccess: %w", err)
	}
	return nil
}

// MarkFailed records a failed handler invocation, leaving the record
// eligible for reclaim by a subsequent retry or redelivery.
func (s *RedisIdempotencyStore) MarkFailed(ctx context.Context, eventID, handlerName string) error {
	if err := s.client.Set(ctx, s.key(eventID, handlerName), string(StatusFailed), s.ttl).Err(); err != nil {
		return fmt.Errorf("stream: idempotency MarkFailed: %w", err)
	}
	return nil
}

// GetStatus returns the current recorded status, or StatusUnknown if no
// record exists (nothing has ever attempted this pair, or it expired).
func (s *RedisIdempotencyStore) GetStatus(ctx context.Context, eventID, handlerName string) (Status, error) {
	val, err := s.client.Get(ctx, s.key(eventID, handlerName)).Result()
	if err == redis.Nil {
		return StatusUnknown, nil
	}
	if err != nil {
		return StatusUnknown, fmt.Errorf("stream: idempotency GetStatus: %w", err)
	}
	return Status(val), nil
}

// BeginEvent claims the event-level precheck slot ahead of any per-handler
// processing. The returned Status reflects what was found before this
// call claimed or reclaimed it: StatusSuccess means every handler already
// finished on a prior delivery (caller should ack and drop without
// invoking anything); StatusProcessing means another delivery is already
// in flight for this event (caller should leave the message unacked);
// any other status means the caller just claimed the slot and should
// proceed to invoke handlers.
func (s *RedisIdempotencyStore) BeginEvent(ctx context.Context, eventID string) (Status, error) {
	key := s.key(eventID, eventLevelHandler)
	ok, err := s.client.SetNX(ctx, key, string(StatusProcessing), s.ttl).Result()
	if err != nil {
		return StatusUnknown, fmt.Errorf("stream: idempotency BeginEvent: %w", err)
	}
	if ok {
		return StatusUnknown, nil
	}

	status, err := s.GetStatus(ctx, eventID, eventLevelHandler)
	if err != nil {
		return StatusUnknown, err
	}
	if status == StatusSuccess || status == StatusProcessing {
		return status, nil
	}
	// FAILED: reclaim for a fresh attempt.
	if err := s.client.Set(ctx, key, string(StatusProcessing), s.ttl).Err(); err != nil {
		return StatusUnknown, fmt.Errorf("stream: idempotency reclaim event: %w", err)
	}
	return StatusUnknown, nil
}

// MarkEventSuccess records that every handler resolved (succeeded or was
// dead-lettered) for this event on this delivery.
func (s *RedisIdempotencyStore) MarkEventSuccess(ctx context.Context, eventID string) error {
	if err := s.client.Set(ctx, s.key(eventID, eventLevelHandler), string(StatusSuccess), s.ttl).Err(); err != nil {
		return fmt.Errorf("stream: idempotency MarkEventSuccess: %w", err)
	}
	return nil
}

// MarkEventFailed records that at least one handler made no terminal
// progress this delivery, leaving the slot reclaimable by a redelivery.
func (s *RedisIdempotencyStore) MarkEventFailed(ctx context.Context, eventID string) error {
	if err := s.client.Set(ctx, s.key(eventID, eventLevelHandler), string(StatusFailed), s.ttl).Err(); err != nil {
		return fmt.Errorf("stream: idempotency MarkEventFailed: %w", err)
	}
	return nil
}

// CleanupExpired sweeps records under the store's prefix in batches of at
// most 100 keys per SCAN cursor iteration. Redis already expires these
// keys natively via TTL, so this is a best-effort accounting pass — it
// reports how many live records remain rather than deleting anything
// still within its TTL, giving the periodic cleanup job something
// observable to log.
func (s *RedisIdempotencyStore) CleanupExpired(ctx context.Context) (int, error) {
	var cursor uint64
	var scanned int
	pattern := s.prefix + ":*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return scanned, fmt.Errorf("stream: idempotency CleanupExpired scan: %w", err)
		}
		scanned += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return scanned, nil
}
