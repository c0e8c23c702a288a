package domain

import (
	"context"
	"math"

	"github.com/draftea/order-system/shared/models"
	"github.com/pkg/errors"
)

// OrderStatus represents the saga position of an order
type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusCreated        OrderStatus = "created"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusFailed         OrderStatus = "failed"
	OrderStatusPaymentPending OrderStatus = "payment_pending"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusPaymentFailed  OrderStatus = "payment_failed"
)

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusConfirmed, OrderStatusFailed},
	OrderStatusCreated:        {OrderStatusConfirmed, OrderStatusFailed},
	OrderStatusConfirmed:      {OrderStatusPaymentPending},
	OrderStatusPaymentPending: {OrderStatusPaymentPending, OrderStatusPaid, OrderStatusPaymentFailed},
}

// CanTransitionTo reports whether the state machine allows s -> next
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsFinal reports statuses no transition leaves
func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusPaid || s == OrderStatusFailed || s == OrderStatusPaymentFailed
}

// IsStreamTerminal reports statuses after which a status stream closes.
// confirmed is included: the creation phase is over even though payment may follow.
func (s OrderStatus) IsStreamTerminal() bool {
	return s == OrderStatusConfirmed || s.IsFinal()
}

func (s OrderStatus) String() string {
	return string(s)
}

// Order aggregate root
type Order struct {
	ID            models.ID
	ProductID     string
	Quantity      int
	CustomerID    string
	Status        OrderStatus
	PaymentID     string
	PaymentStatus string
	PaymentError  string
	TransactionID string
	Timestamps    models.Timestamps
}

// ValidateQuantity accepts positive whole numbers only.
func ValidateQuantity(q float64) (int, error) {
	if math.IsNaN(q) || math.IsInf(q, 0) || q <= 0 || q != math.Trunc(q) {
		return 0, errors.Wrapf(ErrInvalidQuantity, "got %v", q)
	}
	if q > math.MaxInt32 {
		return 0, errors.Wrapf(ErrInvalidQuantity, "got %v", q)
	}
	return int(q), nil
}

func newOrder(productID string, quantity int, customerID string, status OrderStatus) (*Order, error) {
	if productID == "" {
		return nil, errors.Wrap(ErrInvalidRequest, "productId is required")
	}
	if quantity <= 0 {
		return nil, errors.Wrapf(ErrInvalidQuantity, "got %d", quantity)
	}

	return &Order{
		ID:         models.GenerateUUID(),
		ProductID:  productID,
		Quantity:   quantity,
		CustomerID: customerID,
		Status:     status,
		Timestamps: models.NewTimestamps(),
	}, nil
}

// NewPendingOrder starts an order on the asynchronous path
func NewPendingOrder(productID string, quantity int, customerID string) (*Order, error) {
	return newOrder(productID, quantity, customerID, OrderStatusPending)
}

// NewCreatedOrder starts an order on the synchronous path
func NewCreatedOrder(productID string, quantity int, customerID string) (*Order, error) {
	return newOrder(productID, quantity, customerID, OrderStatusCreated)
}

// NewRejectedOrder records an order refused before it was placed (no stock).
func NewRejectedOrder(productID string, quantity int, customerID string) (*Order, error) {
	return newOrder(productID, quantity, customerID, OrderStatusFailed)
}

// TransitionTo moves the order along the state machine
func (o *Order) TransitionTo(next OrderStatus) error {
	if !o.Status.CanTransitionTo(next) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", o.Status, next)
	}
	o.Status = next
	o.Timestamps = o.Timestamps.Touch()
	return nil
}

func (o *Order) Confirm() error {
	return o.TransitionTo(OrderStatusConfirmed)
}

func (o *Order) Fail() error {
	return o.TransitionTo(OrderStatusFailed)
}

// CanStartPayment is true for confirmed orders and for orders whose previous
// payment attempt never got an answer.
func (o *Order) CanStartPayment() bool {
	return o.Status == OrderStatusConfirmed || o.Status == OrderStatusPaymentPending
}

// MarkPaymentPending starts (or restarts) the payment phase
func (o *Order) MarkPaymentPending() error {
	if !o.CanStartPayment() {
		return errors.Wrapf(ErrInvalidOrderState, "cannot start payment from %s", o.Status)
	}
	o.PaymentError = ""
	return o.TransitionTo(OrderStatusPaymentPending)
}

// ApplyPaymentResult settles a pending payment
func (o *Order) ApplyPaymentResult(result PaymentResult) error {
	if result.Success {
		if err := o.TransitionTo(OrderStatusPaid); err != nil {
			return err
		}
		o.PaymentError = ""
	} else {
		if err := o.TransitionTo(OrderStatusPaymentFailed); err != nil {
			return err
		}
		o.PaymentError = result.Message
		if o.PaymentError == "" {
			o.PaymentError = "payment declined"
		}
	}

	o.PaymentID = result.PaymentID
	o.PaymentStatus = result.Status
	o.TransactionID = result.TransactionID
	return nil
}

// PaymentOutcome rebuilds the payment answer of a settled order
func (o *Order) PaymentOutcome() (PaymentResult, bool) {
	switch o.Status {
	case OrderStatusPaid, OrderStatusPaymentFailed:
		return PaymentResult{
			Success:       o.Status == OrderStatusPaid,
			TransactionID: o.TransactionID,
			Message:       o.PaymentError,
			PaymentID:     o.PaymentID,
			Status:        o.PaymentStatus,
		}, true
	}
	return PaymentResult{}, false
}

// RecordPaymentError keeps the order payment_pending with a diagnostic
func (o *Order) RecordPaymentError(msg string) {
	o.PaymentError = msg
	o.Timestamps = o.Timestamps.Touch()
}

// CanNotify is true once the order is confirmed or paid
func (o *Order) CanNotify() bool {
	return o.Status == OrderStatusConfirmed || o.Status == OrderStatusPaid
}

// OrderRepository persists orders. Update is last-write-wins.
// UpdateFrom writes only while the stored status is still from and
// returns ErrOrderStatusChanged otherwise.
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	Update(ctx context.Context, order *Order) error
	UpdateFrom(ctx context.Context, order *Order, from OrderStatus) error
	FindByID(ctx context.Context, id models.ID) (*Order, error)
}
