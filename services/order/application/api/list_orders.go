package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/pkg/errhttp"
	"github.com/sodacore/sodacore/pkg/httpx"
	"github.com/sodacore/sodacore/services/order/application/handlers"
	"github.com/sodacore/sodacore/services/order/domain/queries"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListOrdersResponse is the response body for GET /order.
type ListOrdersResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
}

// ListOrdersHandler handles GET /order requests.
type ListOrdersHandler struct {
	facade *cqrs.Facade
}

// NewListOrdersHandler returns a ListOrdersHandler backed by facade.
func NewListOrdersHandler(facade *cqrs.Facade) *ListOrdersHandler {
	return &ListOrdersHandler{facade: facade}
}

// Execute lists orders for a customer, paginated via limit/offset query
// parameters.
func (h *ListOrdersHandler) Execute(w http.ResponseWriter, r *http.Request) {
	customerID, err := uuid.Parse(r.URL.Query().Get("customer_id"))
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid or missing customer_id")
		return
	}

	limit := parseIntOr(r.URL.Query().Get("limit"), defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := parseIntOr(r.URL.Query().Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}

	result, err := h.facade.SendQuery(r.Context(), &queries.ListOrdersQuery{
		CustomerID: customerID,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		errhttp.WriteError(w, err)
		return
	}

	list := result.(handlers.ListOrdersResult)
	resp := ListOrdersResponse{Orders: make([]OrderResponse, len(list.Orders)), Total: list.Total}
	for i, order := range list.Orders {
		resp.Orders[i] = toOrderResponse(order)
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func parseIntOr(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
