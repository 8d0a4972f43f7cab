// Package commands holds the state-mutating intents this bounded
// context accepts, each embedding cqrs.Envelope so the fabric can read
// and enrich its identity/hop-tracking fields without reflection.
package commands

import (
	"github.com/google/uuid"

	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/services/order/domain/models"
)

// CreateOrderCommand requests creation of a new order.
type CreateOrderCommand struct {
	Env        cqrs.Envelope
	CustomerID uuid.UUID
	Items      []models.Line
}

func (c *CreateOrderCommand) Envelope() *cqrs.Envelope { return &c.Env }

// ReserveInventoryCommand requests inventory reservation for an
// already-created order — issued by OrderCreatedHandler in reaction to
// OrderCreatedEvent (the command → event → command chain).
type ReserveInventoryCommand struct {
	Env     cqrs.Envelope
	OrderID uuid.UUID
}

func (c *ReserveInventoryCommand) Envelope() *cqrs.Envelope { return &c.Env }

// ConfirmOrderCommand requests final confirmation of an order whose
// inventory has already been reserved.
type ConfirmOrderCommand struct {
	Env     cqrs.Envelope
	OrderID uuid.UUID
}

func (c *ConfirmOrderCommand) Envelope() *cqrs.Envelope { return &c.Env }
