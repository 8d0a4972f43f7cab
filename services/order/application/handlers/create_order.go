package handlers

import (
	"context"
	"fmt"

	"github.com/sodacore/sodacore/pkg/cqrs"
	orderdomain "github.com/sodacore/sodacore/services/order/domain"
	"github.com/sodacore/sodacore/services/order/domain/commands"
	"github.com/sodacore/sodacore/services/order/domain/models"
	"github.com/sodacore/sodacore/services/order/domain/repositories"
	domainsvcs "github.com/sodacore/sodacore/services/order/domain/services"
)

// CreateOrderHandler handles commands.CreateOrderCommand: it builds the
// Order aggregate, validates it, and persists it. Save drains the
// aggregate's pending OrderCreatedEvent and publishes it once the write
// commits — OrderCreatedHandler reacts to that event by issuing a
// ReserveInventoryCommand, the command→event→command chain this bounded
// context demonstrates end to end.
type CreateOrderHandler struct {
	repo repositories.OrderRepository
}

// NewCreateOrderHandler returns a CreateOrderHandler backed by repo.
func NewCreateOrderHandler(repo repositories.OrderRepository) *CreateOrderHandler {
	return &CreateOrderHandler{repo: repo}
}

func (h *CreateOrderHandler) Handle(ctx context.Context, cmd cqrs.Command) (any, error) {
	c, ok := cmd.(*commands.CreateOrderCommand)
	if !ok {
		return nil, cqrs.NewContractViolation("create_order: unexpected command type")
	}

	items := make([]models.Line, len(c.Items))
	copy(items, c.Items)

	order := models.NewOrder(c.CustomerID, items)
	if err := domainsvcs.ValidateOrderForCreation(order); err != nil {
		return nil, fmt.Errorf("%w: %w", orderdomain.ErrInvalidOrder, err)
	}

	if err := h.repo.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	return order, nil
}
