package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/draftea/order-system/order-service/domain"
	"github.com/pkg/errors"
)

// NotificationEndpoints holds the base URL of each fan-out target
type NotificationEndpoints struct {
	Notification string
	Email        string
	Analytics    string
	// Unreachable replaces a target's base URL when a caller forces a failure.
	Unreachable string
}

func (e NotificationEndpoints) baseURL(service domain.NotificationService) (string, error) {
	switch service {
	case domain.ServiceNotification:
		return e.Notification, nil
	case domain.ServiceEmail:
		return e.Email, nil
	case domain.ServiceAnalytics:
		return e.Analytics, nil
	}
	return "", errors.Wrapf(domain.ErrUnknownService, "%q", service)
}

type notificationBody struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	Message    string `json:"message"`
	Type       string `json:"type"`
}

type emailBody struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

type analyticsBody struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	Event      string `json:"event"`
}

// NotificationHTTPClient posts order confirmations to the notification, email and analytics services
type NotificationHTTPClient struct {
	endpoints NotificationEndpoints
	http      jsonClient
}

func NewNotificationHTTPClient(endpoints NotificationEndpoints, timeout time.Duration) *NotificationHTTPClient {
	return &NotificationHTTPClient{
		endpoints: endpoints,
		http:      newJSONClient("", timeout),
	}
}

// Send performs one delivery attempt
func (c *NotificationHTTPClient) Send(ctx context.Context, service domain.NotificationService, order *domain.Order, unreachable bool) error {
	base, err := c.endpoints.baseURL(service)
	if err != nil {
		return err
	}
	if unreachable {
		base = c.endpoints.Unreachable
	}

	path, body := c.request(service, order)
	return c.http.do(ctx, http.MethodPost, base+path, body, nil)
}

func (c *NotificationHTTPClient) request(service domain.NotificationService, order *domain.Order) (string, interface{}) {
	orderID := order.ID.String()
	switch service {
	case domain.ServiceEmail:
		return "/emails", emailBody{
			OrderID:    orderID,
			CustomerID: order.CustomerID,
			Subject:    "Order Confirmation",
			Body:       fmt.Sprintf("Your order %s has been confirmed.", orderID),
		}
	case domain.ServiceAnalytics:
		return "/events", analyticsBody{
			OrderID:    orderID,
			CustomerID: order.CustomerID,
			Event:      "ORDER_CONFIRMED",
		}
	default:
		return "/notifications", notificationBody{
			OrderID:    orderID,
			CustomerID: order.CustomerID,
			Message:    fmt.Sprintf("Order %s confirmed", orderID),
			Type:       "ORDER_CONFIRMATION",
		}
	}
}
