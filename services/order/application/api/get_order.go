package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/pkg/errhttp"
	"github.com/sodacore/sodacore/pkg/httpx"
	"github.com/sodacore/sodacore/services/order/domain/models"
	"github.com/sodacore/sodacore/services/order/domain/queries"
)

// GetOrderHandler handles GET /order/{id} requests.
type GetOrderHandler struct {
	facade *cqrs.Facade
}

// NewGetOrderHandler returns a GetOrderHandler backed by facade.
func NewGetOrderHandler(facade *cqrs.Facade) *GetOrderHandler {
	return &GetOrderHandler{facade: facade}
}

// Execute retrieves a single order by ID.
func (h *GetOrderHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	result, err := h.facade.SendQuery(r.Context(), &queries.GetOrderQuery{OrderID: id})
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, toOrderResponse(result.(*models.Order)))
}
