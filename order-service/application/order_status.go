package application

import (
	"context"
	"time"

	"github.com/draftea/order-system/order-service/domain"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// GetOrderStatus returns the current order snapshot
type GetOrderStatus struct {
	orderRepository domain.OrderRepository
}

func NewGetOrderStatus(orderRepository domain.OrderRepository) *GetOrderStatus {
	return &GetOrderStatus{orderRepository: orderRepository}
}

func (uc *GetOrderStatus) Execute(ctx context.Context, orderID string) (*OrderResponse, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}

	order, err := uc.orderRepository.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewOrderResponse(order), nil
}

// StatusEvent is one status stream frame
type StatusEvent struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StreamOrderStatus polls an order and emits its status until it settles
type StreamOrderStatus struct {
	orderRepository domain.OrderRepository
	interval        time.Duration
	maxDuration     time.Duration
	logger          *zap.Logger
}

func NewStreamOrderStatus(
	orderRepository domain.OrderRepository,
	interval, maxDuration time.Duration,
	logger *zap.Logger,
) *StreamOrderStatus {
	return &StreamOrderStatus{
		orderRepository: orderRepository,
		interval:        interval,
		maxDuration:     maxDuration,
		logger:          logger,
	}
}

// Execute emits a frame every interval. It returns nil once a stream-terminal
// status was emitted, maxDuration elapsed or ctx was cancelled; emit errors end
// the stream and are returned.
func (uc *StreamOrderStatus) Execute(ctx context.Context, orderID string, emit func(StatusEvent) error) error {
	id, err := parseOrderID(orderID)
	if err != nil {
		return err
	}
	if _, err := uc.orderRepository.FindByID(ctx, id); err != nil {
		return err
	}

	ticker := time.NewTicker(uc.interval)
	defer ticker.Stop()
	deadline := time.NewTimer(uc.maxDuration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			uc.logger.Debug("status stream expired", zap.String("order_id", orderID))
			return nil
		case <-ticker.C:
			order, err := uc.orderRepository.FindByID(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if errors.Is(err, domain.ErrOrderNotFound) {
					return err
				}
				uc.logger.Warn("status stream read failed", zap.String("order_id", orderID), zap.Error(err))
				continue
			}

			if err := emit(StatusEvent{ID: order.ID.String(), Status: order.Status.String(), Timestamp: time.Now().UTC()}); err != nil {
				return err
			}
			if order.Status.IsStreamTerminal() {
				return nil
			}
		}
	}
}
