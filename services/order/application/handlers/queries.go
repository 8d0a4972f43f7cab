package handlers

import (
	"context"
	"fmt"

	"github.com/sodacore/sodacore/pkg/cache"
	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/services/order/domain/models"
	"github.com/sodacore/sodacore/services/order/domain/queries"
	"github.com/sodacore/sodacore/services/order/domain/repositories"
)

// GetOrderHandler handles queries.GetOrderQuery. It always reads the
// authoritative order from the repository (CachedOrder only carries an
// item count, not the full line items, so it cannot serve as the sole
// source for this query) and warms the Redis read-model cache in the
// background for callers that only need the summary view.
type GetOrderHandler struct {
	repo  repositories.OrderRepository
	cache *cache.OrderCache
}

// NewGetOrderHandler returns a GetOrderHandler backed by repo and an
// optional cache (nil disables caching).
func NewGetOrderHandler(repo repositories.OrderRepository, orderCache *cache.OrderCache) *GetOrderHandler {
	return &GetOrderHandler{repo: repo, cache: orderCache}
}

func (h *GetOrderHandler) Handle(ctx context.Context, query cqrs.Query) (any, error) {
	q, ok := query.(*queries.GetOrderQuery)
	if !ok {
		return nil, cqrs.NewContractViolation("get_order: unexpected query type")
	}

	order, err := h.repo.GetByID(ctx, q.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	if h.cache != nil {
		go func() {
			_ = h.cache.Set(context.Background(), &cache.CachedOrder{
				ID:         order.ID,
				CustomerID: order.CustomerID,
				Status:     string(order.Status),
				ItemCount:  len(order.Items),
				CreatedAt:  order.CreatedAt,
			})
		}()
	}

	return order, nil
}

// ListOrdersResult is the result of ListOrdersHandler.
type ListOrdersResult struct {
	Orders []*models.Order
	Total  int
}

// ListOrdersHandler handles queries.ListOrdersQuery.
type ListOrdersHandler struct {
	repo repositories.OrderRepository
}

// NewListOrdersHandler returns a ListOrdersHandler backed by repo.
func NewListOrdersHandler(repo repositories.OrderRepository) *ListOrdersHandler {
	return &ListOrdersHandler{repo: repo}
}

func (h *ListOrdersHandler) Handle(ctx context.Context, query cqrs.Query) (any, error) {
	q, ok := query.(*queries.ListOrdersQuery)
	if !ok {
		return nil, cqrs.NewContractViolation("list_orders: unexpected query type")
	}

	orders, total, err := h.repo.FindByCustomerID(ctx, q.CustomerID, repositories.QueryOpts{
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	return ListOrdersResult{Orders: orders, Total: total}, nil
}
