package handlers

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/sodacore/sodacore/pkg/config"
	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/pkg/logger"
	"github.com/sodacore/sodacore/services/order/domain/commands"
	"github.com/sodacore/sodacore/services/order/domain/events"
	"github.com/sodacore/sodacore/services/order/domain/models"
	"github.com/sodacore/sodacore/services/order/domain/queries"
	"github.com/sodacore/sodacore/services/order/infrastructure/persistence/memory"
)

func testLogger() logger.Logger {
	return logger.New(&config.Config{LogLevel: "error"})
}

// newWiredFacade builds the same fabric Register wires in production —
// a real InProcessEventBus and Facade, backed by an in-memory repository
// — so tests exercise the full command→event→command chain.
func newWiredFacade(t *testing.T) (*cqrs.Facade, *memory.OrderRepository) {
	t.Helper()
	facade, repo, _ := newWiredFacadeWithBus(t)
	return facade, repo
}

func newWiredFacadeWithBus(t *testing.T) (*cqrs.Facade, *memory.OrderRepository, *cqrs.InProcessEventBus) {
	t.Helper()

	bus := cqrs.NewInProcessEventBus()
	repo := memory.NewOrderRepository(bus)
	commandRegistry := cqrs.NewCommandRegistry()
	queryRegistry := cqrs.NewQueryRegistry()
	facade := cqrs.NewFacade(commandRegistry, queryRegistry, bus, testLogger())

	if err := Register(commandRegistry, queryRegistry, bus, facade, repo, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return facade, repo, bus
}

func TestCreateOrder_DrivesCommandEventCommandChainToConfirmed(t *testing.T) {
	facade, repo, bus := newWiredFacadeWithBus(t)

	// Observers record the hop count and request id each reactive handler
	// saw, so the test can check propagation through the whole chain
	// without reaching into the production handlers' internals.
	var createdHop, reservedHop int
	var createdRequestID, reservedRequestID string
	if err := bus.Subscribe(&events.OrderCreatedEvent{}, cqrs.EventHandlerFunc{
		HandlerName: "test.observe.order_created",
		Fn: func(ctx context.Context, evt cqrs.DomainEvent) error {
			createdHop = evt.Envelope().HopCount
			createdRequestID = evt.Envelope().RequestID
			return nil
		},
	}); err != nil {
		t.Fatalf("subscribe observer: %v", err)
	}
	if err := bus.Subscribe(&events.InventoryReservedEvent{}, cqrs.EventHandlerFunc{
		HandlerName: "test.observe.inventory_reserved",
		Fn: func(ctx context.Context, evt cqrs.DomainEvent) error {
			reservedHop = evt.Envelope().HopCount
			reservedRequestID = evt.Envelope().RequestID
			return nil
		},
	}); err != nil {
		t.Fatalf("subscribe observer: %v", err)
	}

	cmd := &commands.CreateOrderCommand{
		CustomerID: uuid.New(),
		Items:      []models.Line{{SKU: "SKU-1", Quantity: 1, UnitPriceCents: 500}},
	}
	cmd.Envelope().RequestID = "req-chain-1"

	result, err := facade.SendCommand(context.Background(), cmd)
	if err != nil {
		t.Fatalf("SendCommand(CreateOrder): %v", err)
	}
	created, ok := result.(*models.Order)
	if !ok {
		t.Fatalf("expected *models.Order, got %T", result)
	}

	// CreateOrderHandler only persists in StatusPending — the reservation
	// and confirmation happen asynchronously via the reactive handlers as
	// the creation event fans out, synchronously here because
	// InProcessEventBus.Publish calls its subscribers in-line.
	final, err := repo.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Status != models.StatusConfirmed {
		t.Fatalf("expected the chain to reach StatusConfirmed, got %s", final.Status)
	}

	// The chain is CreateOrder(hop 0) -> OrderCreated(hop 1) ->
	// ReserveInventory(hop 2) -> InventoryReserved(hop 3) -> ConfirmOrder
	// (hop 4); cmd itself sits at the head with hop 0.
	if cmd.Envelope().HopCount != 0 {
		t.Fatalf("expected the originating command to stay at hop 0, got %d", cmd.Envelope().HopCount)
	}
	if createdHop != 1 {
		t.Fatalf("expected OrderCreatedEvent at hop 1, got %d", createdHop)
	}
	if reservedHop != 3 {
		t.Fatalf("expected InventoryReservedEvent at hop 3, got %d", reservedHop)
	}
	if createdRequestID != "req-chain-1" || reservedRequestID != "req-chain-1" {
		t.Fatalf("expected request id req-chain-1 to propagate through the chain, got %q and %q", createdRequestID, reservedRequestID)
	}
}

func TestCreateOrder_InvalidOrderIsRejectedBeforePersisting(t *testing.T) {
	facade, _ := newWiredFacade(t)

	cmd := &commands.CreateOrderCommand{
		CustomerID: uuid.New(),
		Items:      nil,
	}

	if _, err := facade.SendCommand(context.Background(), cmd); err == nil {
		t.Fatal("expected an error for an order with no line items")
	}
}

func TestGetOrderQuery_ReturnsPersistedOrder(t *testing.T) {
	facade, _ := newWiredFacade(t)

	created, err := facade.SendCommand(context.Background(), &commands.CreateOrderCommand{
		CustomerID: uuid.New(),
		Items:      []models.Line{{SKU: "SKU-1", Quantity: 1, UnitPriceCents: 500}},
	})
	if err != nil {
		t.Fatalf("SendCommand(CreateOrder): %v", err)
	}
	order := created.(*models.Order)

	result, err := facade.SendQuery(context.Background(), &queries.GetOrderQuery{OrderID: order.ID})
	if err != nil {
		t.Fatalf("SendQuery(GetOrder): %v", err)
	}
	got, ok := result.(*models.Order)
	if !ok {
		t.Fatalf("expected *models.Order, got %T", result)
	}
	if got.ID != order.ID {
		t.Fatalf("expected order %v, got %v", order.ID, got.ID)
	}
}

func TestGetOrderQuery_UnknownIDReturnsError(t *testing.T) {
	facade, _ := newWiredFacade(t)

	_, err := facade.SendQuery(context.Background(), &queries.GetOrderQuery{OrderID: uuid.New()})
	if err == nil {
		t.Fatal("expected an error for an unknown order id")
	}
}

func TestListOrdersQuery_ReturnsPaginatedResultForCustomer(t *testing.T) {
	facade, _ := newWiredFacade(t)
	customerID := uuid.New()

	for i := 0; i < 3; i++ {
		if _, err := facade.SendCommand(context.Background(), &commands.CreateOrderCommand{
			CustomerID: customerID,
			Items:      []models.Line{{SKU: "SKU-1", Quantity: 1, UnitPriceCents: 500}},
		}); err != nil {
			t.Fatalf("SendCommand(CreateOrder) #%d: %v", i, err)
		}
	}

	result, err := facade.SendQuery(context.Background(), &queries.ListOrdersQuery{
		CustomerID: customerID,
		Limit:      2,
		Offset:     0,
	})
	if err != nil {
		t.Fatalf("SendQuery(ListOrders): %v", err)
	}
	listResult, ok := result.(ListOrdersResult)
	if !ok {
		t.Fatalf("expected ListOrdersResult, got %T", result)
	}
	if listResult.Total != 3 {
		t.Fatalf("expected total 3, got %d", listResult.Total)
	}
	if len(listResult.Orders) != 2 {
		t.Fatalf("expected 2 orders for limit=2, got %d", len(listResult.Orders))
	}
}
