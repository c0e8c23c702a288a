package application

import (
	"time"

	"github.com/draftea/order-system/order-service/domain"
	"github.com/draftea/order-system/shared/models"
	"github.com/pkg/errors"
)

// OrderResponse is the order representation returned to HTTP clients
type OrderResponse struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"productId"`
	Quantity      int       `json:"quantity"`
	CustomerID    string    `json:"customerId,omitempty"`
	Status        string    `json:"status"`
	PaymentID     string    `json:"paymentId,omitempty"`
	PaymentStatus string    `json:"paymentStatus,omitempty"`
	PaymentError  string    `json:"paymentError,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func NewOrderResponse(o *domain.Order) *OrderResponse {
	return &OrderResponse{
		ID:            o.ID.String(),
		ProductID:     o.ProductID,
		Quantity:      o.Quantity,
		CustomerID:    o.CustomerID,
		Status:        o.Status.String(),
		PaymentID:     o.PaymentID,
		PaymentStatus: o.PaymentStatus,
		PaymentError:  o.PaymentError,
		TransactionID: o.TransactionID,
		CreatedAt:     o.Timestamps.CreatedAt,
		UpdatedAt:     o.Timestamps.UpdatedAt,
	}
}

// parseOrderID rejects ids that cannot belong to any order
func parseOrderID(raw string) (models.ID, error) {
	id, err := models.NewID(raw)
	if err != nil {
		return "", errors.Wrapf(domain.ErrOrderNotFound, "order %q", raw)
	}
	return id, nil
}
