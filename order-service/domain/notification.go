package domain

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// NotificationService names a fan-out target
type NotificationService string

const (
	ServiceNotification NotificationService = "notification"
	ServiceEmail        NotificationService = "email"
	ServiceAnalytics    NotificationService = "analytics"
)

// NotificationServices lists the fan-out targets in reporting order
var NotificationServices = []NotificationService{ServiceNotification, ServiceEmail, ServiceAnalytics}

// ParseNotificationService validates a service name
func ParseNotificationService(name string) (NotificationService, error) {
	for _, s := range NotificationServices {
		if string(s) == name {
			return s, nil
		}
	}
	return "", errors.Wrapf(ErrUnknownService, "%q", name)
}

// OrderConfirmedEvent is the order_confirmed broadcast payload
type OrderConfirmedEvent struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	Status     string `json:"status"`
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
	Timestamp  string `json:"timestamp"`
}

// NewOrderConfirmedEvent snapshots the order for broadcast
func NewOrderConfirmedEvent(o *Order, at time.Time) OrderConfirmedEvent {
	return OrderConfirmedEvent{
		OrderID:    o.ID.String(),
		CustomerID: o.CustomerID,
		Status:     o.Status.String(),
		ProductID:  o.ProductID,
		Quantity:   o.Quantity,
		Timestamp:  at.UTC().Format(time.RFC3339Nano),
	}
}

// NotificationSender delivers one order notification to one target.
// unreachable routes the call to an address that cannot answer.
type NotificationSender interface {
	Send(ctx context.Context, service NotificationService, order *Order, unreachable bool) error
}

// ServiceOutcome is the per-target result of a fan-out. Time is in milliseconds.
type ServiceOutcome struct {
	Success         bool   `json:"success"`
	Time            int64  `json:"time"`
	Error           string `json:"error,omitempty"`
	RetryCount      int    `json:"retryCount"`
	ErrorPropagated bool   `json:"errorPropagated"`
}

type ErrorMetrics struct {
	ErrorPropagation float64 `json:"errorPropagation"`
	FailedServices   int     `json:"failedServices"`
	TotalServices    int     `json:"totalServices"`
}

type RecoveryMetrics struct {
	TotalRecoveryTime int64 `json:"totalRecoveryTime"`
	RecoveryAttempts  int   `json:"recoveryAttempts"`
}

// BroadcastResult aggregates a synchronous notification fan-out
type BroadcastResult struct {
	OrderID           string                                 `json:"orderId"`
	FlowSuccess       bool                                   `json:"flowSuccess"`
	PartialSuccess    bool                                   `json:"partialSuccess"`
	HasErrors         bool                                   `json:"hasErrors"`
	CompletedServices int                                    `json:"completedServices"`
	TotalTime         int64                                  `json:"totalTime"`
	Services          map[NotificationService]ServiceOutcome `json:"services"`
	ErrorMetrics      ErrorMetrics                           `json:"errorMetrics"`
	RecoveryMetrics   RecoveryMetrics                        `json:"recoveryMetrics"`
}

// NewBroadcastResult derives the aggregate flags and metrics from per-service outcomes.
// PartialSuccess holds when at least one service succeeded, so it is also true when all did.
// Recovery time is the time spent in services that needed at least one retry.
func NewBroadcastResult(orderID string, outcomes map[NotificationService]ServiceOutcome, total time.Duration) *BroadcastResult {
	res := &BroadcastResult{
		OrderID:   orderID,
		TotalTime: total.Milliseconds(),
		Services:  outcomes,
	}

	failed := 0
	for _, o := range outcomes {
		if o.Success {
			res.CompletedServices++
		} else {
			failed++
		}
		if o.RetryCount > 0 {
			res.RecoveryMetrics.RecoveryAttempts += o.RetryCount
			res.RecoveryMetrics.TotalRecoveryTime += o.Time
		}
	}

	n := len(outcomes)
	res.FlowSuccess = n > 0 && failed == 0
	res.HasErrors = failed > 0
	res.PartialSuccess = res.CompletedServices > 0
	res.ErrorMetrics = ErrorMetrics{FailedServices: failed, TotalServices: n}
	if n > 0 {
		res.ErrorMetrics.ErrorPropagation = float64(failed) / float64(n)
	}
	return res
}
