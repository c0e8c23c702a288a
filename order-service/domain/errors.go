package domain

import "github.com/pkg/errors"

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")

	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrPaymentDeclined       = errors.New("payment declined")

	ErrServiceUnavailable = errors.New("service unavailable")

	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidOrderState  = errors.New("invalid order state")
	ErrOrderStatusChanged = errors.New("order status changed concurrently")

	ErrNotificationHookDisabled = errors.New("disabledService hook is not enabled")
	ErrUnknownService           = errors.New("unknown notification service")
)
