package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// OrderCacheTTL is the time-to-live for cached order read models.
	OrderCacheTTL = 24 * time.Hour

	orderCacheKeyPrefix = "order"
)

// CachedOrder is the denormalized read model stored in Redis for
// GetOrderQuery's read-through cache. Fields are stored as a Redis hash.
type CachedOrder struct {
	ID         uuid.UUID `json:"id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Status     string    `json:"status"`
	ItemCount  int       `json:"item_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// OrderCache provides structured read/write operations for order cache
// entries. Key format: "order:{orderID}".
type OrderCache struct {
	client *RedisClient
}

// NewOrderCache creates a new OrderCache backed by the given RedisClient.
func NewOrderCache(r *RedisClient) *OrderCache {
	return &OrderCache{client: r}
}

// Get retrieves a cached order by ID. Returns redis.Nil when the key does
// not exist or has expired.
func (c *OrderCache) Get(ctx context.Context, orderID uuid.UUID) (*CachedOrder, error) {
	key := c.key(orderID)
	vals, err := c.client.Client().HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	if len(vals) == 0 {
		return nil, redis.Nil
	}

	id, err := uuid.Parse(vals["id"])
	if err != nil {
		return nil, fmt.Errorf("cache parse id: %w", err)
	}
	customerID, err := uuid.Parse(vals["customer_id"])
	if err != nil {
		return nil, fmt.Errorf("cache parse customer_id: %w", err)
	}
	itemCount, err := strconv.Atoi(vals["item_count"])
	if err != nil {
		return nil, fmt.Errorf("cache parse item_count: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, vals["created_at"])
	if err != nil {
		return nil, fmt.Errorf("cache parse created_at: %w", err)
	}

	return &CachedOrder{
		ID:         id,
		CustomerID: customerID,
		Status:     vals["status"],
		ItemCount:  itemCount,
		CreatedAt:  createdAt,
	}, nil
}

// Set writes a cached order as a Redis hash with a 24-hour TTL.
func (c *OrderCache) Set(ctx context.Context, order *CachedOrder) error {
	key := c.key(order.ID)
	pipe := c.client.Client().Pipeline()
	pipe.HSet(ctx, key,
		"id", order.ID.String(),
		"customer_id", order.CustomerID.String(),
		"status", order.Status,
		"item_count", strconv.Itoa(order.ItemCount),
		"created_at", order.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, OrderCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete removes a cached order, e.g. once its status has advanced and
// the cached read model is stale.
func (c *OrderCache) Delete(ctx context.Context, orderID uuid.UUID) error {
	if err := c.client.Client().Del(ctx, c.key(orderID)).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func (c *OrderCache) key(orderID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", orderCacheKeyPrefix, orderID)
}
