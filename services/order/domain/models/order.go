package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/services/order/domain/events"
)

// Status is the lifecycle state of an Order aggregate.
type Status string

const (
	StatusPending            Status = "PENDING"
	StatusInventoryReserved  Status = "INVENTORY_RESERVED"
	StatusConfirmed          Status = "CONFIRMED"
)

// Line is one ordered SKU/quantity/price tuple.
type Line struct {
	SKU            string
	Quantity       int
	UnitPriceCents int64
}

// Order is the consistency boundary for this bounded context. It embeds
// cqrs.Aggregate so every state-changing method records the domain event
// describing what happened, for the repository event aspect to drain and
// publish after the surrounding transaction commits.
type Order struct {
	cqrs.Aggregate

	ID         uuid.UUID
	CustomerID uuid.UUID
	Status     Status
	Items      []Line
	CreatedAt  time.Time
}

// NewOrder constructs a new Order in StatusPending and records an
// OrderCreatedEvent. It does not check items; CreateOrderHandler runs the
// order validator service on the constructed aggregate before saving it.
func NewOrder(customerID uuid.UUID, items []Line) *Order {
	o := &Order{
		ID:         uuid.New(),
		CustomerID: customerID,
		Status:     StatusPending,
		Items:      items,
		CreatedAt:  time.Now().UTC(),
	}
	o.Record(events.NewOrderCreatedEvent(o.ID, o.CustomerID, toEventLines(items)))
	return o
}

// ReserveInventory transitions the order to StatusInventoryReserved and
// records an InventoryReservedEvent. No-op if already past this state.
func (o *Order) ReserveInventory() error {
	if o.Status != StatusPending {
		return nil
	}
	o.Status = StatusInventoryReserved
	o.Record(events.NewInventoryReservedEvent(o.ID))
	return nil
}

// Confirm transitions the order to StatusConfirmed and records an
// OrderConfirmedEvent. No-op if already confirmed.
func (o *Order) Confirm() error {
	if o.Status == StatusConfirmed {
		return nil
	}
	o.Status = StatusConfirmed
	o.Record(events.NewOrderConfirmedEvent(o.ID))
	return nil
}

func toEventLines(items []Line) []events.OrderLine {
	out := make([]events.OrderLine, len(items))
	for i, it := range items {
		out[i] = events.OrderLine{SKU: it.SKU, Quantity: it.Quantity, UnitPriceCents: it.UnitPriceCents}
	}
	return out
}
