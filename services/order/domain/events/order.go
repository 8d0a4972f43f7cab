// Package events holds the domain events this bounded context publishes.
// Each embeds cqrs.BaseEvent, which supplies EventID/EventType/
// OccurredOn/Envelope — the concrete type only needs to carry its own
// payload fields.
package events

import (
	"github.com/google/uuid"

	"github.com/sodacore/sodacore/pkg/cqrs"
)

// OrderLine mirrors models.Line for the wire payload, kept separate so
// the domain model and its published event shape can evolve
// independently.
type OrderLine struct {
	SKU            string `json:"sku"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// OrderCreatedEvent is published after a new Order is persisted.
type OrderCreatedEvent struct {
	cqrs.BaseEvent
	OrderID    uuid.UUID   `json:"order_id"`
	CustomerID uuid.UUID   `json:"customer_id"`
	Items      []OrderLine `json:"items"`
}

// NewOrderCreatedEvent returns a freshly-stamped OrderCreatedEvent.
func NewOrderCreatedEvent(orderID, customerID uuid.UUID, items []OrderLine) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		BaseEvent:  cqrs.NewBaseEvent("order.created"),
		OrderID:    orderID,
		CustomerID: customerID,
		Items:      items,
	}
}

// InventoryReservedEvent is published once inventory has been reserved
// for an order.
type InventoryReservedEvent struct {
	cqrs.BaseEvent
	OrderID uuid.UUID `json:"order_id"`
}

// NewInventoryReservedEvent returns a freshly-stamped InventoryReservedEvent.
func NewInventoryReservedEvent(orderID uuid.UUID) *InventoryReservedEvent {
	return &InventoryReservedEvent{
		BaseEvent: cqrs.NewBaseEvent("order.inventory_reserved"),
		OrderID:   orderID,
	}
}

// OrderConfirmedEvent is published once an order has been fully confirmed.
type OrderConfirmedEvent struct {
	cqrs.BaseEvent
	OrderID uuid.UUID `json:"order_id"`
}

// NewOrderConfirmedEvent returns a freshly-stamped OrderConfirmedEvent.
func NewOrderConfirmedEvent(orderID uuid.UUID) *OrderConfirmedEvent {
	return &OrderConfirmedEvent{
		BaseEvent: cqrs.NewBaseEvent("order.confirmed"),
		OrderID:   orderID,
	}
}
