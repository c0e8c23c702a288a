package domain

import "context"

// InventoryLevel is both the stock check answer and the check_update_inventory reply
type InventoryLevel struct {
	ProductID   string `json:"productId"`
	Quantity    int    `json:"quantity"`
	IsAvailable bool   `json:"isAvailable"`
}

// Covers reports whether the level satisfies the requested quantity
func (l InventoryLevel) Covers(quantity int) bool {
	return l.Quantity >= quantity
}

// InventoryReservation decrements stock for an order
type InventoryReservation struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	OrderID   string `json:"orderId"`
}

// InventoryClient is the synchronous inventory service client
type InventoryClient interface {
	Check(ctx context.Context, productID string) (*InventoryLevel, error)
	Reserve(ctx context.Context, reservation InventoryReservation) error
}
