package application

import (
	"context"
	"sync"
	"time"

	"github.com/draftea/order-system/order-service/domain"
	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/resilience"
	"github.com/draftea/order-system/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CreateOrderCommand represents the command to create an order.
// Quantity is decoded as a float so fractional input can be rejected.
type CreateOrderCommand struct {
	ProductID  string  `json:"productId"`
	Quantity   float64 `json:"quantity"`
	CustomerID string  `json:"customerId,omitempty"`
}

func (c *CreateOrderCommand) validate() (int, error) {
	if c.ProductID == "" {
		return 0, errors.Wrap(domain.ErrInvalidRequest, "productId is required")
	}
	return domain.ValidateQuantity(c.Quantity)
}

// CreateOrderSync checks and reserves stock before answering
type CreateOrderSync struct {
	orderRepository domain.OrderRepository
	inventory       domain.InventoryClient
	policy          resilience.RetryPolicy
	logger          *zap.Logger
}

func NewCreateOrderSync(
	orderRepository domain.OrderRepository,
	inventory domain.InventoryClient,
	policy resilience.RetryPolicy,
	logger *zap.Logger,
) *CreateOrderSync {
	return &CreateOrderSync{
		orderRepository: orderRepository,
		inventory:       inventory,
		policy:          policy,
		logger:          logger,
	}
}

// Execute returns the order in a terminal status. A rejected order is returned
// together with ErrInsufficientInventory, a failed reservation with ErrServiceUnavailable.
func (uc *CreateOrderSync) Execute(ctx context.Context, cmd *CreateOrderCommand) (*OrderResponse, error) {
	quantity, err := cmd.validate()
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "CreateOrderSync")
	defer span.End()

	level, retries, err := resilience.Call(ctx, uc.policy, func(ctx context.Context) (*domain.InventoryLevel, error) {
		return uc.inventory.Check(ctx, cmd.ProductID)
	})
	if err != nil {
		uc.logger.Error("inventory check failed",
			zap.String("product_id", cmd.ProductID), zap.Int("retries", retries), zap.Error(err))
		span.RecordError(err)
		return nil, errors.Wrapf(domain.ErrServiceUnavailable, "inventory check: %v", err)
	}

	if !level.Covers(quantity) {
		order, err := domain.NewRejectedOrder(cmd.ProductID, quantity, cmd.CustomerID)
		if err != nil {
			return nil, err
		}
		if err := uc.orderRepository.Create(ctx, order); err != nil {
			return nil, errors.Wrap(err, "failed to save order")
		}
		uc.logger.Info("order rejected",
			zap.String("order_id", order.ID.String()), zap.Int("available", level.Quantity), zap.Int("requested", quantity))
		telemetry.RecordCounter(ctx, "orders_created_total", "Orders by creation outcome", 1,
			attribute.String("mode", "sync"), attribute.String("status", order.Status.String()))
		return NewOrderResponse(order), errors.Wrapf(domain.ErrInsufficientInventory,
			"available %d, requested %d", level.Quantity, quantity)
	}

	order, err := domain.NewCreatedOrder(cmd.ProductID, quantity, cmd.CustomerID)
	if err != nil {
		return nil, err
	}
	if err := uc.orderRepository.Create(ctx, order); err != nil {
		return nil, errors.Wrap(err, "failed to save order")
	}

	reservation := domain.InventoryReservation{ProductID: order.ProductID, Quantity: order.Quantity, OrderID: order.ID.String()}
	retries, reserveErr := uc.policy.Run(ctx, func(ctx context.Context) error {
		return uc.inventory.Reserve(ctx, reservation)
	})

	if reserveErr != nil {
		uc.logger.Error("inventory reservation failed",
			zap.String("order_id", order.ID.String()), zap.Int("retries", retries), zap.Error(reserveErr))
		span.RecordError(reserveErr)
		if err := order.Fail(); err != nil {
			return nil, err
		}
	} else if err := order.Confirm(); err != nil {
		return nil, err
	}

	if err := uc.orderRepository.Update(ctx, order); err != nil {
		return nil, errors.Wrap(err, "failed to update order")
	}

	telemetry.RecordCounter(ctx, "orders_created_total", "Orders by creation outcome", 1,
		attribute.String("mode", "sync"), attribute.String("status", order.Status.String()))

	if reserveErr != nil {
		return NewOrderResponse(order), errors.Wrapf(domain.ErrServiceUnavailable, "inventory reservation: %v", reserveErr)
	}

	uc.logger.Info("order confirmed", zap.String("order_id", order.ID.String()))
	return NewOrderResponse(order), nil
}

// InventoryCheckRequest is the check_update_inventory payload
type InventoryCheckRequest struct {
	OrderID   string `json:"orderId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// SettledFunc observes the outcome of a background order settlement.
// err is nil for confirmed orders.
type SettledFunc func(order *domain.Order, err error)

// CreateOrderAsync persists a pending order and settles it in the background
// through an inventory request/reply exchange.
type CreateOrderAsync struct {
	orderRepository domain.OrderRepository
	requester       events.Requester
	policy          resilience.RetryPolicy
	budget          time.Duration
	logger          *zap.Logger

	mu        sync.RWMutex
	onSettled SettledFunc
	inflight  sync.WaitGroup
}

// NewCreateOrderAsync creates the use case. budget bounds a whole background settlement.
func NewCreateOrderAsync(
	orderRepository domain.OrderRepository,
	requester events.Requester,
	policy resilience.RetryPolicy,
	budget time.Duration,
	logger *zap.Logger,
) *CreateOrderAsync {
	return &CreateOrderAsync{
		orderRepository: orderRepository,
		requester:       requester,
		policy:          policy,
		budget:          budget,
		logger:          logger,
	}
}

// OnSettled registers a hook called once per background settlement
func (uc *CreateOrderAsync) OnSettled(fn SettledFunc) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.onSettled = fn
}

// Execute returns the pending order immediately
func (uc *CreateOrderAsync) Execute(ctx context.Context, cmd *CreateOrderCommand) (*OrderResponse, error) {
	quantity, err := cmd.validate()
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "CreateOrderAsync")
	defer span.End()

	order, err := domain.NewPendingOrder(cmd.ProductID, quantity, cmd.CustomerID)
	if err != nil {
		return nil, err
	}
	if err := uc.orderRepository.Create(ctx, order); err != nil {
		return nil, errors.Wrap(err, "failed to save order")
	}

	response := NewOrderResponse(order)

	uc.inflight.Add(1)
	go uc.settle(context.WithoutCancel(ctx), *order)

	return response, nil
}

func (uc *CreateOrderAsync) settle(ctx context.Context, order domain.Order) {
	defer uc.inflight.Done()

	ctx, cancel := context.WithTimeout(ctx, uc.budget)
	defer cancel()

	settleErr := uc.reserve(ctx, &order)
	if settleErr != nil {
		if err := order.Fail(); err != nil {
			uc.logger.Error("failed to fail order", zap.String("order_id", order.ID.String()), zap.Error(err))
		}
	} else if err := order.Confirm(); err != nil {
		settleErr = err
	}

	// the budget may already be spent; the final status must still land
	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancelPersist()
	if err := uc.orderRepository.Update(persistCtx, &order); err != nil {
		uc.logger.Error("failed to persist settled order", zap.String("order_id", order.ID.String()), zap.Error(err))
		if settleErr == nil {
			settleErr = errors.Wrap(err, "failed to update order")
		}
	}

	fields := []zap.Field{zap.String("order_id", order.ID.String()), zap.String("status", order.Status.String())}
	if settleErr != nil {
		uc.logger.Warn("async order failed", append(fields, zap.Error(settleErr))...)
	} else {
		uc.logger.Info("async order confirmed", fields...)
	}
	telemetry.RecordCounter(persistCtx, "orders_created_total", "Orders by creation outcome", 1,
		attribute.String("mode", "async"), attribute.String("status", order.Status.String()))

	uc.mu.RLock()
	hook := uc.onSettled
	uc.mu.RUnlock()
	if hook != nil {
		hook(&order, settleErr)
	}
}

func (uc *CreateOrderAsync) reserve(ctx context.Context, order *domain.Order) error {
	evt := events.NewEvent(order.ID, events.CheckUpdateInventoryTopic, InventoryCheckRequest{
		OrderID:   order.ID.String(),
		ProductID: order.ProductID,
		Quantity:  order.Quantity,
	})

	policy := uc.policy
	policy.OnRetry = func(attempt int, err error, _ time.Duration) {
		uc.logger.Warn("inventory request failed, retrying",
			zap.String("order_id", order.ID.String()), zap.Int("attempt", attempt), zap.Error(err))
	}

	reply, _, err := resilience.Call(ctx, policy, func(ctx context.Context) (*events.Event, error) {
		return uc.requester.Request(ctx, evt)
	})
	if err != nil {
		return errors.Wrapf(domain.ErrServiceUnavailable, "inventory request: %v", err)
	}

	var level domain.InventoryLevel
	if err := reply.UnmarshalPayload(&level); err != nil {
		return errors.Wrap(err, "invalid inventory reply")
	}
	if !level.IsAvailable {
		return errors.Wrapf(domain.ErrInsufficientInventory, "product %s", order.ProductID)
	}
	return nil
}

// Wait blocks until every background settlement finished or ctx is done
func (uc *CreateOrderAsync) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		uc.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
