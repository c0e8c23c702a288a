package infrastructure

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/draftea/order-system/order-service/domain"
	"github.com/pkg/errors"
)

// InventoryHTTPClient talks to the inventory service REST API
type InventoryHTTPClient struct {
	http jsonClient
}

// NewInventoryHTTPClient creates a client for baseURL (e.g. http://localhost:3001)
func NewInventoryHTTPClient(baseURL string, timeout time.Duration) *InventoryHTTPClient {
	return &InventoryHTTPClient{http: newJSONClient(baseURL, timeout)}
}

// Check returns the stock level of a product. Unknown products have no stock.
func (c *InventoryHTTPClient) Check(ctx context.Context, productID string) (*domain.InventoryLevel, error) {
	var level domain.InventoryLevel
	endpoint := c.http.baseURL + "/inventory/check/" + url.PathEscape(productID)
	if err := c.http.do(ctx, http.MethodGet, endpoint, nil, &level); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return &domain.InventoryLevel{ProductID: productID}, nil
		}
		return nil, err
	}
	if level.ProductID == "" {
		level.ProductID = productID
	}
	return &level, nil
}

// Reserve decrements stock for an order
func (c *InventoryHTTPClient) Reserve(ctx context.Context, reservation domain.InventoryReservation) error {
	return c.http.do(ctx, http.MethodPost, c.http.baseURL+"/inventory/update", reservation, nil)
}
