package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/pkg/database"
	"github.com/sodacore/sodacore/pkg/txn"
	orderdomain "github.com/sodacore/sodacore/services/order/domain"
	"github.com/sodacore/sodacore/services/order/domain/models"
	"github.com/sodacore/sodacore/services/order/domain/repositories"
)

// OrderRepository implements repositories.OrderRepository against
// PostgreSQL. Every mutating method opens its own txn.Scope and commits
// it only after the SQL transaction itself commits, so a domain event
// recorded on the aggregate is never published ahead of the write that
// produced it.
type OrderRepository struct {
	db  *database.Database
	bus cqrs.EventBus
}

// NewOrderRepository returns an OrderRepository backed by the given
// connection pool and event bus.
func NewOrderRepository(db *database.Database, bus cqrs.EventBus) *OrderRepository {
	return &OrderRepository{db: db, bus: bus}
}

// Save persists a new Order and publishes its recorded events only after
// the insert transaction commits.
func (r *OrderRepository) Save(ctx context.Context, order *models.Order) error {
	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	scope := txn.NewScope()
	scopedCtx := txn.WithScope(ctx, scope)

	err = cqrs.InterceptMutation(scopedCtx, order, r.bus, func(ctx context.Context) error {
		return r.insert(ctx, tx, order)
	})
	if err != nil {
		scope.Rollback()
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		scope.Rollback()
		return fmt.Errorf("commit tx: %w", err)
	}
	scope.Commit()
	return nil
}

// Update persists changes to an existing Order and publishes any events
// recorded since the last drain, again only after commit.
func (r *OrderRepository) Update(ctx context.Context, order *models.Order) error {
	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	scope := txn.NewScope()
	scopedCtx := txn.WithScope(ctx, scope)

	err = cqrs.InterceptMutation(scopedCtx, order, r.bus, func(ctx context.Context) error {
		return r.update(ctx, tx, order)
	})
	if err != nil {
		scope.Rollback()
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		scope.Rollback()
		return fmt.Errorf("commit tx: %w", err)
	}
	scope.Commit()
	return nil
}

func (r *OrderRepository) insert(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, customer_id, status, items, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, order.ID, order.CustomerID, string(order.Status), items, order.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return orderdomain.ErrOrderAlreadyExists
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) update(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, items = $2 WHERE id = $3
	`, string(order.Status), items, order.ID)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return orderdomain.ErrOrderNotFound
	}
	return nil
}

// GetByID retrieves an Order by ID. Returns ErrOrderNotFound if not found.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	row := r.db.DB().QueryRowContext(ctx, `
		SELECT id, customer_id, status, items, created_at FROM orders WHERE id = $1
	`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, orderdomain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("query order: %w", err)
	}
	return order, nil
}

// FindByCustomerID retrieves a paginated list of orders and total count
// for the given customer.
func (r *OrderRepository) FindByCustomerID(ctx context.Context, customerID uuid.UUID, opts repositories.QueryOpts) ([]*models.Order, int, error) {
	rows, err := r.db.DB().QueryContext(ctx, `
		SELECT id, customer_id, status, items, created_at
		FROM orders WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, customerID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate orders: %w", err)
	}

	var total int
	if err := r.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE customer_id = $1`, customerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	return orders, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		order     models.Order
		status    string
		itemsJSON []byte
	)
	if err := row.Scan(&order.ID, &order.CustomerID, &status, &itemsJSON, &order.CreatedAt); err != nil {
		return nil, err
	}
	order.Status = models.Status(status)
	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return &order, nil
}
