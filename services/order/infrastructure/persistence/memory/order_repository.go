// Package memory provides an in-process OrderRepository for tests and
// for any deployment that does not need durable order storage.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/pkg/txn"
	orderdomain "github.com/sodacore/sodacore/services/order/domain"
	"github.com/sodacore/sodacore/services/order/domain/models"
	"github.com/sodacore/sodacore/services/order/domain/repositories"
)

// OrderRepository is a goroutine-safe, in-memory implementation of
// repositories.OrderRepository. It runs every mutation through
// cqrs.InterceptMutation exactly like the Postgres implementation, so
// tests exercise the real repository event aspect rather than a stub.
type OrderRepository struct {
	mu     sync.Mutex
	bus    cqrs.EventBus
	orders map[uuid.UUID]*models.Order
}

// NewOrderRepository returns an empty in-memory OrderRepository.
func NewOrderRepository(bus cqrs.EventBus) *OrderRepository {
	return &OrderRepository{
		bus:    bus,
		orders: make(map[uuid.UUID]*models.Order),
	}
}

// Save stores a new order. Returns ErrOrderAlreadyExists if the ID is
// already in use.
func (r *OrderRepository) Save(ctx context.Context, order *models.Order) error {
	scope := txn.NewScope()
	scopedCtx := txn.WithScope(ctx, scope)

	err := cqrs.InterceptMutation(scopedCtx, order, r.bus, func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, exists := r.orders[order.ID]; exists {
			return orderdomain.ErrOrderAlreadyExists
		}
		r.orders[order.ID] = snapshotOrder(order)
		return nil
	})
	if err != nil {
		scope.Rollback()
		return err
	}
	scope.Commit()
	return nil
}

// Update overwrites an existing order's mutable state. Returns
// ErrOrderNotFound if the ID is unknown.
func (r *OrderRepository) Update(ctx context.Context, order *models.Order) error {
	scope := txn.NewScope()
	scopedCtx := txn.WithScope(ctx, scope)

	err := cqrs.InterceptMutation(scopedCtx, order, r.bus, func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, exists := r.orders[order.ID]; !exists {
			return orderdomain.ErrOrderNotFound
		}
		r.orders[order.ID] = snapshotOrder(order)
		return nil
	})
	if err != nil {
		scope.Rollback()
		return err
	}
	scope.Commit()
	return nil
}

// GetByID retrieves an order by ID. Returns ErrOrderNotFound if unknown.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, orderdomain.ErrOrderNotFound
	}
	return snapshotOrder(order), nil
}

// FindByCustomerID returns a paginated, creation-descending slice of
// orders for the given customer, plus the total count.
func (r *OrderRepository) FindByCustomerID(ctx context.Context, customerID uuid.UUID, opts repositories.QueryOpts) ([]*models.Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []*models.Order
	for _, order := range r.orders {
		if order.CustomerID == customerID {
			matched = append(matched, snapshotOrder(order))
		}
	}
	for i := 1; i < len(matched); i++ {
		for j := i; j > 0 && matched[j].CreatedAt.After(matched[j-1].CreatedAt); j-- {
			matched[j], matched[j-1] = matched[j-1], matched[j]
		}
	}

	total := len(matched)
	start := opts.Offset
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if opts.Limit <= 0 || end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// snapshotOrder copies order's data fields into a fresh *models.Order,
// deliberately field-by-field rather than by dereferencing order: Order
// embeds cqrs.Aggregate, which carries a sync.Mutex, and a whole-struct
// copy would copy that lock's state along with it.
func snapshotOrder(order *models.Order) *models.Order {
	items := make([]models.Line, len(order.Items))
	copy(items, order.Items)
	return &models.Order{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Status:     order.Status,
		Items:      items,
		CreatedAt:  order.CreatedAt,
	}
}
