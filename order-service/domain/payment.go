package domain

import (
	"context"
	"strings"
)

const DefaultCurrency = "USD"

// PaymentRequest is sent to the payment service (HTTP body and process_payment event)
type PaymentRequest struct {
	OrderID  string `json:"orderId"`
	Quantity int    `json:"quantity"`
	Currency string `json:"currency"`
}

// NormalizeCurrency applies the default and upper-cases the code
func NormalizeCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return DefaultCurrency
	}
	return currency
}

// PaymentResult is the payment service answer, both synchronously and in payment_callback
type PaymentResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message,omitempty"`
	PaymentID     string `json:"paymentId,omitempty"`
	Status        string `json:"status,omitempty"`
}

// PaymentCallback is the payload of the payment_callback event
type PaymentCallback struct {
	OrderID string        `json:"orderId"`
	Payload PaymentResult `json:"payload"`
}

// PaymentOptions carries per-call knobs forwarded to the payment service.
type PaymentOptions struct {
	// ProcessingTime asks the payment service to simulate latency (milliseconds).
	ProcessingTime string
}

// PaymentGateway is the synchronous payment service client
type PaymentGateway interface {
	Process(ctx context.Context, req PaymentRequest, opts PaymentOptions) (*PaymentResult, error)
	GetStatus(ctx context.Context, transactionID string) (map[string]interface{}, error)
}
