// Package errhttp maps domain sentinel errors to HTTP status codes.
// Add a case to mapErrorToStatus for each new domain sentinel error.
package errhttp

import (
	"errors"
	"net/http"

	"github.com/sodacore/sodacore/pkg/cqrs"
	"github.com/sodacore/sodacore/pkg/httpx"
	orderdomain "github.com/sodacore/sodacore/services/order/domain"
)

// WriteError maps err to an HTTP status code and writes a JSON error response.
// Uses errors.Is() so wrapped sentinel errors are matched correctly.
// Defaults to 500 Internal Server Error for unrecognized errors.
func WriteError(w http.ResponseWriter, err error) {
	httpx.JSONError(w, mapErrorToStatus(err), err.Error())
}

func mapErrorToStatus(err error) int {
	var fabricErr *cqrs.FabricError
	if errors.As(err, &fabricErr) {
		return mapFabricKind(fabricErr.Kind)
	}

	switch {
	case errors.Is(err, orderdomain.ErrOrderNotFound):
		return http.StatusNotFound // 404
	case errors.Is(err, orderdomain.ErrOrderAlreadyExists):
		return http.StatusConflict // 409
	case errors.Is(err, orderdomain.ErrInvalidOrder):
		return http.StatusUnprocessableEntity // 422
	default:
		return http.StatusInternalServerError // 500
	}
}

// mapFabricKind maps the dispatch fabric's error taxonomy to
// HTTP status codes for the thin demo HTTP surface.
func mapFabricKind(kind cqrs.Kind) int {
	switch kind {
	case cqrs.KindContractViolation:
		return http.StatusBadRequest // 400
	case cqrs.KindNoHandlerRegistered:
		return http.StatusNotFound // 404
	case cqrs.KindCommandRecursionTooDeep, cqrs.KindAsyncRecursionTooDeep:
		return http.StatusTooManyRequests // 429
	case cqrs.KindSerializationFailure:
		return http.StatusUnprocessableEntity // 422
	case cqrs.KindTransportFailure:
		return http.StatusServiceUnavailable // 503
	case cqrs.KindHandlerFailure, cqrs.KindTransactionalPublishAborted:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}
