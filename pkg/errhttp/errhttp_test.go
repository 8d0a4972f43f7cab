package errhttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sodacore/sodacore/pkg/cqrs"
	orderdomain "github.com/sodacore/sodacore/services/order/domain"
)

func TestWriteError_StatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"ErrOrderNotFound", orderdomain.ErrOrderNotFound, http.StatusNotFound},
		{"ErrOrderAlreadyExists", orderdomain.ErrOrderAlreadyExists, http.StatusConflict},
		{"ErrInvalidOrder", orderdomain.ErrInvalidOrder, http.StatusUnprocessableEntity},
		{"wrapped ErrOrderNotFound", fmt.Errorf("get order: %w", orderdomain.ErrOrderNotFound), http.StatusNotFound},
		{"wrapped ErrInvalidOrder", fmt.Errorf("%w: no line items", orderdomain.ErrInvalidOrder), http.StatusUnprocessableEntity},
		{"KindContractViolation", cqrs.NewContractViolation("bad command"), http.StatusBadRequest},
		{"KindNoHandlerRegistered", cqrs.NewNoHandlerRegistered("command", "CreateOrderCommand"), http.StatusNotFound},
		{"KindCommandRecursionTooDeep", cqrs.NewCommandRecursionTooDeep(10, []string{"a", "b"}), http.StatusTooManyRequests},
		{"KindAsyncRecursionTooDeep", cqrs.NewAsyncRecursionTooDeep(20, 21), http.StatusTooManyRequests},
		{"KindSerializationFailure", cqrs.NewSerializationFailure("decode", "OrderCreatedEvent", nil), http.StatusUnprocessableEntity},
		{"KindTransportFailure", cqrs.NewTransportFailure("publish", nil), http.StatusServiceUnavailable},
		{"KindHandlerFailure", cqrs.NewHandlerFailure("OrderCreatedEvent", "reserve-on-created", nil), http.StatusInternalServerError},
		{"unknown error", errors.New("something unexpected"), http.StatusInternalServerError},
		{"generic wrapped error", fmt.Errorf("context: %w", errors.New("db down")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestWriteError_JSONBody(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, orderdomain.ErrOrderNotFound)

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response body is not valid JSON: %v", err)
	}
	if _, ok := body["error"]; !ok {
		t.Fatal("response body missing 'error' key")
	}
}

func TestWriteError_ContentType(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, orderdomain.ErrOrderNotFound)

	ct := w.Header().Get("Content-Type")
	if ct == "" {
		t.Fatal("Content-Type header not set")
	}
}
