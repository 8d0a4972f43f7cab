package handlers

import (
	"fmt"

	"github.com/sodacore/sodacore/pkg/cache"
	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/services/order/domain/commands"
	"github.com/sodacore/sodacore/services/order/domain/events"
	"github.com/sodacore/sodacore/services/order/domain/queries"
	"github.com/sodacore/sodacore/services/order/domain/repositories"
)

// Register wires every command handler, query handler, and reactive
// event handler this bounded context owns onto the shared registries and
// event bus. Call once during application startup, after the repository
// and cache have been constructed.
func Register(
	commandRegistry *cqrs.CommandRegistry,
	queryRegistry *cqrs.QueryRegistry,
	eventBus cqrs.EventBus,
	facade *cqrs.Facade,
	repo repositories.OrderRepository,
	orderCache *cache.OrderCache,
) error {
	if err := commandRegistry.Register(&commands.CreateOrderCommand{}, NewCreateOrderHandler(repo)); err != nil {
		return fmt.Errorf("register create_order: %w", err)
	}
	if err := commandRegistry.Register(&commands.ReserveInventoryCommand{}, NewReserveInventoryHandler(repo)); err != nil {
		return fmt.Errorf("register reserve_inventory: %w", err)
	}
	if err := commandRegistry.Register(&commands.ConfirmOrderCommand{}, NewConfirmOrderHandler(repo)); err != nil {
		return fmt.Errorf("register confirm_order: %w", err)
	}

	if err := queryRegistry.Register(&queries.GetOrderQuery{}, NewGetOrderHandler(repo, orderCache)); err != nil {
		return fmt.Errorf("register get_order: %w", err)
	}
	if err := queryRegistry.Register(&queries.ListOrdersQuery{}, NewListOrdersHandler(repo)); err != nil {
		return fmt.Errorf("register list_orders: %w", err)
	}

	if err := eventBus.Subscribe(&events.OrderCreatedEvent{}, NewOrderCreatedHandler(facade)); err != nil {
		return fmt.Errorf("subscribe order_created: %w", err)
	}
	if err := eventBus.Subscribe(&events.InventoryReservedEvent{}, NewInventoryReservedHandler(facade)); err != nil {
		return fmt.Errorf("subscribe inventory_reserved: %w", err)
	}

	return nil
}
