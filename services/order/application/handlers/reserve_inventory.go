package handlers

import (
	"context"
	"fmt"

	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/services/order/domain/commands"
	"github.com/sodacore/sodacore/services/order/domain/events"
	"github.com/sodacore/sodacore/services/order/domain/repositories"
)

// ReserveInventoryHandler handles commands.ReserveInventoryCommand. It
// loads the order, transitions it, and saves it — Update drains and
// publishes the resulting InventoryReservedEvent.
type ReserveInventoryHandler struct {
	repo repositories.OrderRepository
}

// NewReserveInventoryHandler returns a ReserveInventoryHandler backed by repo.
func NewReserveInventoryHandler(repo repositories.OrderRepository) *ReserveInventoryHandler {
	return &ReserveInventoryHandler{repo: repo}
}

func (h *ReserveInventoryHandler) Handle(ctx context.Context, cmd cqrs.Command) (any, error) {
	c, ok := cmd.(*commands.ReserveInventoryCommand)
	if !ok {
		return nil, cqrs.NewContractViolation("reserve_inventory: unexpected command type")
	}

	order, err := h.repo.GetByID(ctx, c.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}

	if err := order.ReserveInventory(); err != nil {
		return nil, fmt.Errorf("reserve inventory: %w", err)
	}

	if err := h.repo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	return order, nil
}

// OrderCreatedHandler reacts to events.OrderCreatedEvent by issuing a
// ReserveInventoryCommand through the facade — the event→command half of
// the command→event→command chain.
type OrderCreatedHandler struct {
	facade *cqrs.Facade
}

// NewOrderCreatedHandler returns an OrderCreatedHandler that dispatches
// follow-on commands through facade.
func NewOrderCreatedHandler(facade *cqrs.Facade) *OrderCreatedHandler {
	return &OrderCreatedHandler{facade: facade}
}

func (h *OrderCreatedHandler) Name() string { return "order.created.reserve_inventory" }

func (h *OrderCreatedHandler) Handle(ctx context.Context, evt cqrs.DomainEvent) error {
	e, ok := evt.(*events.OrderCreatedEvent)
	if !ok {
		return cqrs.NewContractViolation("order_created: unexpected event type")
	}
	cmd := &commands.ReserveInventoryCommand{OrderID: e.OrderID}
	_, err := h.facade.SendCommand(ctx, cmd)
	return err
}
