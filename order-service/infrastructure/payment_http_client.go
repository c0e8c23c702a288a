package infrastructure

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/draftea/order-system/order-service/domain"
)

// PaymentHTTPClient talks to the payment service REST API
type PaymentHTTPClient struct {
	http jsonClient
}

func NewPaymentHTTPClient(baseURL string, timeout time.Duration) *PaymentHTTPClient {
	return &PaymentHTTPClient{http: newJSONClient(baseURL, timeout)}
}

// Process charges an order. A declined payment is a successful call with Success=false.
func (c *PaymentHTTPClient) Process(ctx context.Context, req domain.PaymentRequest, opts domain.PaymentOptions) (*domain.PaymentResult, error) {
	endpoint := c.http.baseURL + "/payment/process"
	if opts.ProcessingTime != "" {
		endpoint += "?" + url.Values{"processingTime": {opts.ProcessingTime}}.Encode()
	}

	var result domain.PaymentResult
	if err := c.http.do(ctx, http.MethodPost, endpoint, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetStatus returns the payment service view of a transaction as-is
func (c *PaymentHTTPClient) GetStatus(ctx context.Context, transactionID string) (map[string]interface{}, error) {
	var status map[string]interface{}
	endpoint := c.http.baseURL + "/payment/" + url.PathEscape(transactionID)
	if err := c.http.do(ctx, http.MethodGet, endpoint, nil, &status); err != nil {
		return nil, err
	}
	return status, nil
}
