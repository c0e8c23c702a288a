package handlers

import (
	"context"

	"github.com/draftea/order-system/order-service/application"
	"github.com/draftea/order-system/order-service/domain"
	"github.com/draftea/order-system/shared/events"
	"go.uber.org/zap"
)

// OrderEventHandlers handles broker events addressed to the order service
type OrderEventHandlers struct {
	handlePaymentCallback *application.HandlePaymentCallback
	logger                *zap.Logger
}

// NewOrderEventHandlers creates new order event handlers
func NewOrderEventHandlers(handlePaymentCallback *application.HandlePaymentCallback, logger *zap.Logger) *OrderEventHandlers {
	return &OrderEventHandlers{
		handlePaymentCallback: handlePaymentCallback,
		logger:                logger,
	}
}

// Handle implements the events.EventHandler interface
func (h *OrderEventHandlers) Handle(ctx context.Context, event *events.Event) error {
	switch event.Topic {
	case events.PaymentCallbackTopic:
		return h.HandlePaymentCallback(ctx, event)
	default:
		// Unknown topic, ignore
		return nil
	}
}

// HandlerID returns the unique identifier for this event handler
func (h *OrderEventHandlers) HandlerID() string {
	return "order-service-event-handler"
}

// HandlePaymentCallback handles payment_callback events. Malformed payloads are dropped.
func (h *OrderEventHandlers) HandlePaymentCallback(ctx context.Context, event *events.Event) error {
	var callback domain.PaymentCallback
	if err := event.UnmarshalPayload(&callback); err != nil {
		h.logger.Error("dropping malformed payment callback", zap.String("event_id", event.ID.String()), zap.Error(err))
		return nil
	}
	return h.handlePaymentCallback.Execute(ctx, callback)
}
