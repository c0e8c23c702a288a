package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/draftea/order-system/order-service/application"
	"github.com/draftea/order-system/order-service/domain"
	"github.com/draftea/order-system/shared/resilience"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string                     `json:"error"`
	Code  string                     `json:"code"`
	Order *application.OrderResponse `json:"order,omitempty"`
}

type errorKind struct {
	target error
	status int
	code   string
}

// first match wins: ErrCircuitOpen must precede ErrServiceUnavailable
var errorKinds = []errorKind{
	{domain.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{domain.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{domain.ErrInsufficientInventory, http.StatusBadRequest, "insufficient_inventory"},
	{domain.ErrPaymentDeclined, http.StatusBadRequest, "payment_declined"},
	{domain.ErrNotificationHookDisabled, http.StatusBadRequest, "hook_disabled"},
	{resilience.ErrCircuitOpen, http.StatusServiceUnavailable, "circuit_open"},
	{domain.ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
	{domain.ErrOrderNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_state"},
	{domain.ErrInvalidOrderState, http.StatusConflict, "invalid_state"},
	{domain.ErrOrderStatusChanged, http.StatusConflict, "invalid_state"},
}

// classify maps an error to its HTTP status and machine code
func classify(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status, k.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError answers with the mapped status. Internal errors are logged and hidden.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error, order *application.OrderResponse) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code, Order: order})
}
