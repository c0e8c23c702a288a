package application

import (
	"context"
	"time"

	"github.com/draftea/order-system/order-service/domain"
	"github.com/draftea/order-system/shared/events"
	"github.com/draftea/order-system/shared/resilience"
	"github.com/draftea/order-system/shared/telemetry"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultNotificationPolicies returns the per-target retry budgets
func DefaultNotificationPolicies() map[domain.NotificationService]resilience.RetryPolicy {
	return map[domain.NotificationService]resilience.RetryPolicy{
		domain.ServiceNotification: {MaxRetries: 2, AttemptTimeout: 3 * time.Second, BaseDelay: 100 * time.Millisecond},
		domain.ServiceEmail:        {MaxRetries: 1, AttemptTimeout: 3 * time.Second},
		domain.ServiceAnalytics:    {MaxRetries: 0, AttemptTimeout: 3 * time.Second},
	}
}

// NotifyCommand targets one order. DisabledService forces one target to fail.
type NotifyCommand struct {
	OrderID         string `json:"-"`
	DisabledService string `json:"disabledService,omitempty"`
}

func loadNotifiableOrder(ctx context.Context, orders domain.OrderRepository, orderID string) (*domain.Order, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}
	order, err := orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.CanNotify() {
		return nil, errors.Wrapf(domain.ErrInvalidOrderState, "cannot notify %s order", order.Status)
	}
	return order, nil
}

// NotifyOrderSync calls every notification target concurrently and reports each outcome
type NotifyOrderSync struct {
	orderRepository  domain.OrderRepository
	sender           domain.NotificationSender
	policies         map[domain.NotificationService]resilience.RetryPolicy
	allowDisableHook bool
	logger           *zap.Logger
}

func NewNotifyOrderSync(
	orderRepository domain.OrderRepository,
	sender domain.NotificationSender,
	policies map[domain.NotificationService]resilience.RetryPolicy,
	allowDisableHook bool,
	logger *zap.Logger,
) *NotifyOrderSync {
	return &NotifyOrderSync{
		orderRepository:  orderRepository,
		sender:           sender,
		policies:         policies,
		allowDisableHook: allowDisableHook,
		logger:           logger,
	}
}

func (uc *NotifyOrderSync) Execute(ctx context.Context, cmd *NotifyCommand) (*domain.BroadcastResult, error) {
	var disabled domain.NotificationService
	if cmd.DisabledService != "" {
		if !uc.allowDisableHook {
			return nil, domain.ErrNotificationHookDisabled
		}
		svc, err := domain.ParseNotificationService(cmd.DisabledService)
		if err != nil {
			return nil, errors.Wrap(domain.ErrInvalidRequest, err.Error())
		}
		disabled = svc
	}

	ctx, span := telemetry.StartSpan(ctx, "NotifyOrderSync")
	defer span.End()

	order, err := loadNotifiableOrder(ctx, uc.orderRepository, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	outcomes := make([]domain.ServiceOutcome, len(domain.NotificationServices))

	// every target reports through outcomes; no goroutine returns an error
	var g errgroup.Group
	for i, svc := range domain.NotificationServices {
		g.Go(func() error {
			outcomes[i] = uc.deliver(ctx, svc, order, svc == disabled)
			return nil
		})
	}
	_ = g.Wait()

	byService := make(map[domain.NotificationService]domain.ServiceOutcome, len(outcomes))
	for i, svc := range domain.NotificationServices {
		byService[svc] = outcomes[i]
	}
	result := domain.NewBroadcastResult(order.ID.String(), byService, time.Since(start))

	uc.logger.Info("notification fan-out finished",
		zap.String("order_id", result.OrderID),
		zap.Int("completed", result.CompletedServices),
		zap.Bool("flow_success", result.FlowSuccess),
		zap.Int64("total_ms", result.TotalTime))

	return result, nil
}

func (uc *NotifyOrderSync) deliver(ctx context.Context, svc domain.NotificationService, order *domain.Order, unreachable bool) domain.ServiceOutcome {
	start := time.Now()
	retries, err := uc.policies[svc].Run(ctx, func(ctx context.Context) error {
		return uc.sender.Send(ctx, svc, order, unreachable)
	})
	elapsed := time.Since(start)

	telemetry.RecordHistogram(ctx, "notification_duration_ms", "Notification delivery time per target",
		float64(elapsed.Milliseconds()), attribute.String("target", string(svc)), attribute.Bool("success", err == nil))

	outcome := domain.ServiceOutcome{
		Success:    err == nil,
		Time:       elapsed.Milliseconds(),
		RetryCount: retries,
	}
	if err != nil {
		outcome.Error = err.Error()
		outcome.ErrorPropagated = true
		uc.logger.Warn("notification failed",
			zap.String("order_id", order.ID.String()), zap.String("service", string(svc)),
			zap.Int("retries", retries), zap.Error(err))
	}
	return outcome
}

// BroadcastResponse reports whether order_confirmed reached the broker. Time is in milliseconds.
type BroadcastResponse struct {
	Success bool   `json:"success"`
	Time    int64  `json:"time"`
	Error   string `json:"error,omitempty"`
}

// NotifyOrderAsync publishes a single order_confirmed event for independent consumers
type NotifyOrderAsync struct {
	orderRepository domain.OrderRepository
	publisher       events.Publisher
	publishTimeout  time.Duration
	logger          *zap.Logger
}

func NewNotifyOrderAsync(
	orderRepository domain.OrderRepository,
	publisher events.Publisher,
	publishTimeout time.Duration,
	logger *zap.Logger,
) *NotifyOrderAsync {
	return &NotifyOrderAsync{
		orderRepository: orderRepository,
		publisher:       publisher,
		publishTimeout:  publishTimeout,
		logger:          logger,
	}
}

// Execute returns the response alongside ErrServiceUnavailable when the publish failed
func (uc *NotifyOrderAsync) Execute(ctx context.Context, orderID string) (*BroadcastResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "NotifyOrderAsync")
	defer span.End()

	order, err := loadNotifiableOrder(ctx, uc.orderRepository, orderID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	publishCtx, cancel := context.WithTimeout(ctx, uc.publishTimeout)
	defer cancel()

	evt := events.NewEvent(order.ID, events.OrderConfirmedTopic, domain.NewOrderConfirmedEvent(order, start))
	err = uc.publisher.Publish(publishCtx, evt)
	response := &BroadcastResponse{Success: err == nil, Time: time.Since(start).Milliseconds()}

	if err != nil {
		span.RecordError(err)
		response.Error = err.Error()
		uc.logger.Error("failed to publish order_confirmed", zap.String("order_id", order.ID.String()), zap.Error(err))
		return response, errors.Wrapf(domain.ErrServiceUnavailable, "publish %s: %v", events.OrderConfirmedTopic, err)
	}

	return response, nil
}
