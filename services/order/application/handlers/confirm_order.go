package handlers

import (
	"context"
	"fmt"

	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/services/order/domain/commands"
	"github.com/sodacore/sodacore/services/order/domain/events"
	"github.com/sodacore/sodacore/services/order/domain/repositories"
)

// ConfirmOrderHandler handles commands.ConfirmOrderCommand, the final
// step of the order lifecycle.
type ConfirmOrderHandler struct {
	repo repositories.OrderRepository
}

// NewConfirmOrderHandler returns a ConfirmOrderHandler backed by repo.
func NewConfirmOrderHandler(repo repositories.OrderRepository) *ConfirmOrderHandler {
	return &ConfirmOrderHandler{repo: repo}
}

func (h *ConfirmOrderHandler) Handle(ctx context.Context, cmd cqrs.Command) (any, error) {
	c, ok := cmd.(*commands.ConfirmOrderCommand)
	if !ok {
		return nil, cqrs.NewContractViolation("confirm_order: unexpected command type")
	}

	order, err := h.repo.GetByID(ctx, c.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}

	if err := order.Confirm(); err != nil {
		return nil, fmt.Errorf("confirm order: %w", err)
	}

	if err := h.repo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	return order, nil
}

// InventoryReservedHandler reacts to events.InventoryReservedEvent by
// issuing a ConfirmOrderCommand, completing the lifecycle without manual
// client orchestration.
type InventoryReservedHandler struct {
	facade *cqrs.Facade
}

// NewInventoryReservedHandler returns an InventoryReservedHandler that
// dispatches follow-on commands through facade.
func NewInventoryReservedHandler(facade *cqrs.Facade) *InventoryReservedHandler {
	return &InventoryReservedHandler{facade: facade}
}

func (h *InventoryReservedHandler) Name() string { return "inventory_reserved.confirm_order" }

func (h *InventoryReservedHandler) Handle(ctx context.Context, evt cqrs.DomainEvent) error {
	e, ok := evt.(*events.InventoryReservedEvent)
	if !ok {
		return cqrs.NewContractViolation("inventory_reserved: unexpected event type")
	}
	cmd := &commands.ConfirmOrderCommand{OrderID: e.OrderID}
	_, err := h.facade.SendCommand(ctx, cmd)
	return err
}
