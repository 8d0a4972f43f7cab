package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/pkg/errhttp"
	"github.com/sodacore/sodacore/pkg/httpx"
	pkgvalidator "github.com/sodacore/sodacore/pkg/validator"
	"github.com/sodacore/sodacore/services/order/domain/commands"
	"github.com/sodacore/sodacore/services/order/domain/models"
)

// CreateOrderLineRequest is one line item in a CreateOrderRequest.
type CreateOrderLineRequest struct {
	SKU            string `json:"sku" validate:"required"`
	Quantity       int    `json:"quantity" validate:"required,gt=0"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"gte=0"`
}

// CreateOrderRequest is the request body for POST /order.
type CreateOrderRequest struct {
	CustomerID uuid.UUID                `json:"customer_id" validate:"required"`
	Items      []CreateOrderLineRequest `json:"items" validate:"required,min=1,dive"`
}

// OrderResponse is the read model returned for a single order.
type OrderResponse struct {
	ID         uuid.UUID `json:"id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Status     string    `json:"status"`
	ItemCount  int       `json:"item_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// PostOrderHandler handles POST /order requests.
type PostOrderHandler struct {
	facade *cqrs.Facade
}

// NewPostOrderHandler returns a PostOrderHandler backed by facade.
func NewPostOrderHandler(facade *cqrs.Facade) *PostOrderHandler {
	return &PostOrderHandler{facade: facade}
}

// Execute creates a new order.
func (h *PostOrderHandler) Execute(w http.ResponseWriter, r *http.Request) {
	req, ok := pkgvalidator.ValidateRequest[CreateOrderRequest](w, r)
	if !ok {
		return
	}

	items := make([]models.Line, len(req.Items))
	for i, it := range req.Items {
		items[i] = models.Line{SKU: it.SKU, Quantity: it.Quantity, UnitPriceCents: it.UnitPriceCents}
	}

	result, err := h.facade.SendCommand(r.Context(), &commands.CreateOrderCommand{
		CustomerID: req.CustomerID,
		Items:      items,
	})
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	order := result.(*models.Order)
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order))
}

func toOrderResponse(order *models.Order) OrderResponse {
	return OrderResponse{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Status:     string(order.Status),
		ItemCount:  len(order.Items),
		CreatedAt:  order.CreatedAt,
	}
}
