package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/draftea/order-system/order-service/application"
	"github.com/draftea/order-system/order-service/domain"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var statusUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// OrderHandlers contains order HTTP handlers
type OrderHandlers struct {
	createOrderSync      *application.CreateOrderSync
	createOrderAsync     *application.CreateOrderAsync
	initiatePayment      *application.InitiatePayment
	initiatePaymentAsync *application.InitiatePaymentAsync
	getPaymentStatus     *application.GetPaymentStatus
	getOrderStatus       *application.GetOrderStatus
	streamOrderStatus    *application.StreamOrderStatus
	notifyOrderSync      *application.NotifyOrderSync
	notifyOrderAsync     *application.NotifyOrderAsync
	upgrader             websocket.Upgrader
	logger               *zap.Logger
}

// NewOrderHandlers creates new order handlers
func NewOrderHandlers(
	createOrderSync *application.CreateOrderSync,
	createOrderAsync *application.CreateOrderAsync,
	initiatePayment *application.InitiatePayment,
	initiatePaymentAsync *application.InitiatePaymentAsync,
	getPaymentStatus *application.GetPaymentStatus,
	getOrderStatus *application.GetOrderStatus,
	streamOrderStatus *application.StreamOrderStatus,
	notifyOrderSync *application.NotifyOrderSync,
	notifyOrderAsync *application.NotifyOrderAsync,
	logger *zap.Logger,
) *OrderHandlers {
	return &OrderHandlers{
		createOrderSync:      createOrderSync,
		createOrderAsync:     createOrderAsync,
		initiatePayment:      initiatePayment,
		initiatePaymentAsync: initiatePaymentAsync,
		getPaymentStatus:     getPaymentStatus,
		getOrderStatus:       getOrderStatus,
		streamOrderStatus:    streamOrderStatus,
		notifyOrderSync:      notifyOrderSync,
		notifyOrderAsync:     notifyOrderAsync,
		upgrader:             statusUpgrader,
		logger:               logger,
	}
}

// decode reads a JSON body. An empty body leaves v untouched when optional is set.
func decode(r *http.Request, v interface{}, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return nil
	}
	return errors.Wrap(domain.ErrInvalidRequest, "invalid request body")
}

// CreateOrderSync handles POST /orders/sync
func (h *OrderHandlers) CreateOrderSync(w http.ResponseWriter, r *http.Request) {
	var cmd application.CreateOrderCommand
	if err := decode(r, &cmd, false); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	order, err := h.createOrderSync.Execute(r.Context(), &cmd)
	if err != nil {
		writeError(w, h.logger, err, order)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// CreateOrderAsync handles POST /orders/async-direct
func (h *OrderHandlers) CreateOrderAsync(w http.ResponseWriter, r *http.Request) {
	var cmd application.CreateOrderCommand
	if err := decode(r, &cmd, false); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	order, err := h.createOrderAsync.Execute(r.Context(), &cmd)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// InitiatePayment handles POST /orders/payment/sync
func (h *OrderHandlers) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var cmd application.PaymentCommand
	if err := decode(r, &cmd, false); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	cmd.ProcessingTime = r.URL.Query().Get("processingTime")

	result, err := h.initiatePayment.Execute(r.Context(), &cmd)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// InitiatePaymentAsync handles POST /orders/payment/async
func (h *OrderHandlers) InitiatePaymentAsync(w http.ResponseWriter, r *http.Request) {
	var cmd application.PaymentCommand
	if err := decode(r, &cmd, false); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	result, err := h.initiatePaymentAsync.Execute(r.Context(), &cmd)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// GetPaymentStatus handles GET /orders/payment/status/{transactionId}
func (h *OrderHandlers) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.getPaymentStatus.Execute(r.Context(), chi.URLParam(r, "transactionId"))
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetOrderStatus handles GET /orders/status/{orderId}
func (h *OrderHandlers) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	order, err := h.getOrderStatus.Execute(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// NotifyOrderSync handles POST /orders/{orderId}/notify-sync
func (h *OrderHandlers) NotifyOrderSync(w http.ResponseWriter, r *http.Request) {
	var cmd application.NotifyCommand
	if err := decode(r, &cmd, true); err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	cmd.OrderID = chi.URLParam(r, "orderId")

	result, err := h.notifyOrderSync.Execute(r.Context(), &cmd)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// NotifyOrderAsync handles POST /orders/{orderId}/notify-async
func (h *OrderHandlers) NotifyOrderAsync(w http.ResponseWriter, r *http.Request) {
	result, err := h.notifyOrderAsync.Execute(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		if result != nil {
			status, _ := classify(err)
			writeJSON(w, status, result)
			return
		}
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RegisterRoutes registers order routes
func (h *OrderHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/sync", h.CreateOrderSync)
		r.Post("/async-direct", h.CreateOrderAsync)
		r.Post("/payment/sync", h.InitiatePayment)
		r.Post("/payment/async", h.InitiatePaymentAsync)
		r.Get("/payment/status/{transactionId}", h.GetPaymentStatus)
		r.Get("/status/{orderId}", h.GetOrderStatus)
		r.Get("/stream/{orderId}", h.StreamOrderStatus)
		r.Get("/ws/{orderId}", h.WatchOrderStatus)
		r.Post("/{orderId}/notify-sync", h.NotifyOrderSync)
		r.Post("/{orderId}/notify-async", h.NotifyOrderAsync)
	})
}
