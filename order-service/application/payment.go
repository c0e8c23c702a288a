package application

import (
	"context"
	"time"

	"github.com/draftea/order-system/order-service/domain"
	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/models"
	"github.com/draftea/order-system/shared/resilience"
	"github.com/draftea/order-system/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PaymentBreakerName is the breaker guarding the payment service
const PaymentBreakerName = "payment-service"

const (
	msgPaymentUnavailable = "payment service temporarily unavailable"
	msgPaymentInitiated   = "Payment processing initiated"
)

// PaymentCommand represents the command to pay an order
type PaymentCommand struct {
	OrderID  string  `json:"orderId"`
	Quantity float64 `json:"quantity"`
	Currency string  `json:"currency"`
	// ProcessingTime is forwarded to the payment service (query parameter).
	ProcessingTime string `json:"-"`
}

func (c *PaymentCommand) validate() (models.ID, domain.PaymentRequest, error) {
	if c.OrderID == "" {
		return "", domain.PaymentRequest{}, errors.Wrap(domain.ErrInvalidRequest, "orderId is required")
	}
	id, err := models.NewID(c.OrderID)
	if err != nil {
		return "", domain.PaymentRequest{}, errors.Wrap(domain.ErrInvalidRequest, err.Error())
	}
	quantity, err := domain.ValidateQuantity(c.Quantity)
	if err != nil {
		return "", domain.PaymentRequest{}, err
	}

	return id, domain.PaymentRequest{
		OrderID:  id.String(),
		Quantity: quantity,
		Currency: domain.NormalizeCurrency(c.Currency),
	}, nil
}

// startPayment loads the order and moves it to payment_pending
func startPayment(ctx context.Context, orders domain.OrderRepository, id models.ID) (*domain.Order, error) {
	order, err := orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := order.MarkPaymentPending(); err != nil {
		return nil, err
	}
	if err := orders.Update(ctx, order); err != nil {
		return nil, errors.Wrap(err, "failed to update order")
	}
	return order, nil
}

// InitiatePayment charges an order synchronously through the payment breaker
type InitiatePayment struct {
	orderRepository domain.OrderRepository
	gateway         domain.PaymentGateway
	breakers        *resilience.Registry
	policy          resilience.RetryPolicy
	logger          *zap.Logger
}

func NewInitiatePayment(
	orderRepository domain.OrderRepository,
	gateway domain.PaymentGateway,
	breakers *resilience.Registry,
	policy resilience.RetryPolicy,
	logger *zap.Logger,
) *InitiatePayment {
	return &InitiatePayment{
		orderRepository: orderRepository,
		gateway:         gateway,
		breakers:        breakers,
		policy:          policy,
		logger:          logger,
	}
}

// Execute returns the payment service answer. A declined payment is not an error.
func (uc *InitiatePayment) Execute(ctx context.Context, cmd *PaymentCommand) (*domain.PaymentResult, error) {
	id, req, err := cmd.validate()
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "InitiatePayment")
	defer span.End()

	order, err := startPayment(ctx, uc.orderRepository, id)
	if err != nil {
		return nil, err
	}

	opts := domain.PaymentOptions{ProcessingTime: cmd.ProcessingTime}
	result, retries, callErr := resilience.Call(ctx, uc.policy, func(ctx context.Context) (*domain.PaymentResult, error) {
		var res *domain.PaymentResult
		err := uc.breakers.Fire(ctx, PaymentBreakerName, func(ctx context.Context) error {
			r, err := uc.gateway.Process(ctx, req, opts)
			if err == nil {
				res = r
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return res, nil
	})

	logFields := []zap.Field{zap.String("order_id", order.ID.String()), zap.Int("retries", retries)}

	var outErr error
	switch {
	case callErr == nil:
		if err := order.ApplyPaymentResult(*result); err != nil {
			return nil, err
		}
		if !result.Success {
			uc.logger.Warn("payment declined", append(logFields, zap.String("message", order.PaymentError))...)
		}
	case errors.Is(callErr, resilience.ErrCircuitOpen):
		order.RecordPaymentError(msgPaymentUnavailable)
		outErr = errors.Wrap(callErr, msgPaymentUnavailable)
	default:
		order.RecordPaymentError(callErr.Error())
		outErr = errors.Wrapf(domain.ErrServiceUnavailable, "payment: %v", callErr)
	}

	if err := uc.orderRepository.UpdateFrom(ctx, order, domain.OrderStatusPaymentPending); err != nil {
		if !errors.Is(err, domain.ErrOrderStatusChanged) {
			return nil, errors.Wrap(err, "failed to update order")
		}
		return uc.settledElsewhere(ctx, order.ID, logFields)
	}

	telemetry.RecordCounter(ctx, "payments_total", "Payment attempts by outcome", 1,
		attribute.String("mode", "sync"), attribute.String("status", order.Status.String()))

	if outErr != nil {
		span.RecordError(outErr)
		uc.logger.Error("payment not completed", append(logFields, zap.Error(callErr))...)
		return nil, outErr
	}

	uc.logger.Info("payment settled", append(logFields, zap.String("status", order.Status.String()))...)
	return result, nil
}

// settledElsewhere reports the outcome a payment_callback stored while the call was in flight
func (uc *InitiatePayment) settledElsewhere(ctx context.Context, id models.ID, logFields []zap.Field) (*domain.PaymentResult, error) {
	stored, err := uc.orderRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	outcome, ok := stored.PaymentOutcome()
	if !ok {
		return nil, errors.Wrapf(domain.ErrOrderStatusChanged, "order %s is %s", id, stored.Status)
	}

	uc.logger.Info("payment already settled by callback", append(logFields, zap.String("status", stored.Status.String()))...)
	return &outcome, nil
}

// AsyncPaymentResponse acknowledges a payment handed to the broker
type AsyncPaymentResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// InitiatePaymentAsync publishes process_payment and lets the callback settle the order
type InitiatePaymentAsync struct {
	orderRepository domain.OrderRepository
	publisher       events.Publisher
	publishTimeout  time.Duration
	logger          *zap.Logger
}

func NewInitiatePaymentAsync(
	orderRepository domain.OrderRepository,
	publisher events.Publisher,
	publishTimeout time.Duration,
	logger *zap.Logger,
) *InitiatePaymentAsync {
	return &InitiatePaymentAsync{
		orderRepository: orderRepository,
		publisher:       publisher,
		publishTimeout:  publishTimeout,
		logger:          logger,
	}
}

func (uc *InitiatePaymentAsync) Execute(ctx context.Context, cmd *PaymentCommand) (*AsyncPaymentResponse, error) {
	id, req, err := cmd.validate()
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "InitiatePaymentAsync")
	defer span.End()

	order, err := startPayment(ctx, uc.orderRepository, id)
	if err != nil {
		return nil, err
	}

	publishCtx, cancel := context.WithTimeout(ctx, uc.publishTimeout)
	defer cancel()

	evt := events.NewEvent(order.ID, events.ProcessPaymentTopic, req)
	if err := uc.publisher.Publish(publishCtx, evt); err != nil {
		span.RecordError(err)
		uc.logger.Error("failed to publish payment request", zap.String("order_id", order.ID.String()), zap.Error(err))

		order.RecordPaymentError(msgPaymentUnavailable)
		if updateErr := uc.orderRepository.Update(ctx, order); updateErr != nil {
			uc.logger.Error("failed to update order", zap.String("order_id", order.ID.String()), zap.Error(updateErr))
		}
		return nil, errors.Wrapf(domain.ErrServiceUnavailable, "publish %s: %v", events.ProcessPaymentTopic, err)
	}

	telemetry.RecordCounter(ctx, "payments_total", "Payment attempts by outcome", 1,
		attribute.String("mode", "async"), attribute.String("status", order.Status.String()))

	return &AsyncPaymentResponse{
		OrderID: order.ID.String(),
		Status:  order.Status.String(),
		Message: msgPaymentInitiated,
	}, nil
}

// HandlePaymentCallback applies payment_callback results to pending orders.
// Callbacks for unknown or already settled orders are acknowledged and dropped.
type HandlePaymentCallback struct {
	orderRepository domain.OrderRepository
	logger          *zap.Logger
}

func NewHandlePaymentCallback(orderRepository domain.OrderRepository, logger *zap.Logger) *HandlePaymentCallback {
	return &HandlePaymentCallback{orderRepository: orderRepository, logger: logger}
}

func (uc *HandlePaymentCallback) Execute(ctx context.Context, callback domain.PaymentCallback) error {
	ctx, span := telemetry.StartSpan(ctx, "HandlePaymentCallback")
	defer span.End()

	logger := uc.logger.With(zap.String("order_id", callback.OrderID))

	id, err := models.NewID(callback.OrderID)
	if err != nil {
		logger.Warn("dropping payment callback with invalid order id", zap.Error(err))
		return nil
	}

	order, err := uc.orderRepository.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			logger.Warn("dropping payment callback for unknown order")
			return nil
		}
		return errors.Wrap(err, "failed to load order")
	}

	if order.Status != domain.OrderStatusPaymentPending {
		logger.Info("ignoring payment callback", zap.String("status", order.Status.String()))
		return nil
	}

	if err := order.ApplyPaymentResult(callback.Payload); err != nil {
		return err
	}
	if err := uc.orderRepository.UpdateFrom(ctx, order, domain.OrderStatusPaymentPending); err != nil {
		if errors.Is(err, domain.ErrOrderStatusChanged) {
			logger.Info("ignoring payment callback for an order settled meanwhile")
			return nil
		}
		return errors.Wrap(err, "failed to update order")
	}

	logger.Info("payment callback applied", zap.String("status", order.Status.String()))
	return nil
}

// GetPaymentStatus proxies the payment service status lookup
type GetPaymentStatus struct {
	gateway domain.PaymentGateway
}

func NewGetPaymentStatus(gateway domain.PaymentGateway) *GetPaymentStatus {
	return &GetPaymentStatus{gateway: gateway}
}

func (uc *GetPaymentStatus) Execute(ctx context.Context, transactionID string) (map[string]interface{}, error) {
	if transactionID == "" {
		return nil, errors.Wrap(domain.ErrInvalidRequest, "transactionId is required")
	}

	status, err := uc.gateway.GetStatus(ctx, transactionID)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrServiceUnavailable, "payment status: %v", err)
	}
	return status, nil
}
