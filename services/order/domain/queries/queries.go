// Package queries holds the read-only intents this bounded context
// accepts.
package queries

import (
	"github.com/google/uuid"

	"github.com/sodacore/sodacore/pkg/cqrs"
)

// GetOrderQuery requests a single order by id.
type GetOrderQuery struct {
	Env     cqrs.Envelope
	OrderID uuid.UUID
}

func (q *GetOrderQuery) Envelope() *cqrs.Envelope { return &q.Env }

// ListOrdersQuery requests a paginated list of orders for a customer.
type ListOrdersQuery struct {
	Env        cqrs.Envelope
	CustomerID uuid.UUID
	Limit      int
	Offset     int
}

func (q *ListOrdersQuery) Envelope() *cqrs.Envelope { return &q.Env }
