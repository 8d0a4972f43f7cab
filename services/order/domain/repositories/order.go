package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/sodacore/sodacore/services/order/domain/models"
)

// QueryOpts contains pagination parameters for list queries.
type QueryOpts struct {
	Limit  int // Maximum number of records to return
	Offset int // Number of records to skip
}

// OrderRepository is the persistence interface for the Order aggregate.
// The domain layer owns this interface; infrastructure implements it.
// Every mutating method is expected to drain and publish the aggregate's
// pending events via cqrs.InterceptMutation.
type OrderRepository interface {
	Save(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)

	// FindByCustomerID retrieves a paginated list of orders for the given
	// customer. Returns the orders slice and the total count (ignoring
	// pagination).
	FindByCustomerID(ctx context.Context, customerID uuid.UUID, opts QueryOpts) ([]*models.Order, int, error)

	// Update persists changes to an existing Order and publishes any
	// events recorded on it since the last drain.
	Update(ctx context.Context, order *models.Order) error
}
