package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sodacore/sodacore/pkg/cache"
	"github.com/sodacore/sodacore/pkg/config"
	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/pkg/database"
	"github.com/sodacore/sodacore/pkg/logger"
	"github.com/sodacore/sodacore/pkg/stream"
)

// EventBusTypeInProcess keeps event delivery in-memory, within the
// dispatching goroutine — useful for tests and single-process demos.
const EventBusTypeInProcess = "in-process"

// New connects to Postgres and Redis, builds the CQRS registries and
// Facade, and selects the EventBus implementation named by
// cfg.EventBusType (the in-process bus, or the persistent Redis Streams
// transport). Returns the wired Application and a cleanup func the
// caller should defer.
//
// Bounded contexts still need to call their own Wire/Register functions
// against the returned Application before it is ready to serve traffic.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*Application, func(), error) {
	db, err := database.New(ctx, cfg.DefinitionDatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}

	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	commandRegistry := cqrs.NewCommandRegistry()
	queryRegistry := cqrs.NewQueryRegistry()

	var (
		eventBus    cqrs.EventBus
		streamBus   *stream.Bus
		idempotency *stream.RedisIdempotencyStore
	)

	if cfg.EventBusType == EventBusTypeInProcess {
		eventBus = cqrs.NewInProcessEventBus()
	} else {
		pollTimeout, err := time.ParseDuration(cfg.EventRedisPollTimeout)
		if err != nil {
			pollTimeout = 5 * time.Second
		}
		initialDelay, err := time.ParseDuration(cfg.EventInitialRetryDelay)
		if err != nil {
			initialDelay = time.Second
		}
		idempotencyTTL, err := time.ParseDuration(cfg.EventIdempotencyExpireTime)
		if err != nil {
			idempotencyTTL = 24 * time.Hour
		}

		codec := stream.NewCodec()
		if cfg.EventIdempotencyEnabled {
			idempotency = stream.NewRedisIdempotencyStore(redisClient.Client(), cfg.EventIdempotencyRedisPrefix, idempotencyTTL)
		}
		streamBus = stream.NewBus(redisClient.Client(), codec, idempotency, log, stream.Options{
			StreamPrefix:     cfg.EventRedisStreamPrefix,
			GroupName:        cfg.EventRedisGroupName,
			ConsumerName:     cfg.EventRedisConsumerName,
			MaxLen:           cfg.EventRedisStreamMaxLen,
			PollTimeout:      pollTimeout,
			MaxRetries:       cfg.EventMaxRetries,
			InitialDelay:     initialDelay,
			BackoffFactor:    cfg.EventBackoffMultiplier,
			DeadLetterSuffix: cfg.EventDeadLetterStreamSuffix,
		})
		eventBus = streamBus
	}

	facade := cqrs.NewFacade(commandRegistry, queryRegistry, eventBus, log,
		cqrs.WithSyncDepthLimit(cfg.EventSyncDepthLimit),
		cqrs.WithAsyncHopLimit(cfg.EventAsyncHopLimit),
		cqrs.WithAsyncPool(cqrs.NewAsyncPool(cfg.EventAsyncPoolSize)),
	)

	a := &Application{
		Db:          db,
		Logger:      log,
		Redis:       redisClient,
		Facade:      facade,
		Commands:    commandRegistry,
		Queries:     queryRegistry,
		EventBus:    eventBus,
		StreamBus:   streamBus,
		Idempotency: idempotency,
	}

	cleanup := func() {
		_ = redisClient.Close()
		_ = db.Close()
	}
	return a, cleanup, nil
}
