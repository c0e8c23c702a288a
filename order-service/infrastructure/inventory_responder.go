package infrastructure

import (
	"context"

	"github.com/draftea/order-system/order-service/domain"
	"github.com/draftea/order-system/shared/events"
	sharedinfra "github.com/draftea/order-system/shared/infrastructure"
	"github.com/pkg/errors"
)

// NewInventoryResponder answers check_update_inventory requests from the
// inventory HTTP API, for running without a broker. Stock is reserved only
// when it covers the request.
func NewInventoryResponder(inventory domain.InventoryClient) sharedinfra.Responder {
	return func(ctx context.Context, request *events.Event) (interface{}, error) {
		var reservation domain.InventoryReservation
		if err := request.UnmarshalPayload(&reservation); err != nil {
			return nil, err
		}

		level, err := inventory.Check(ctx, reservation.ProductID)
		if err != nil {
			return nil, errors.Wrap(err, "inventory check")
		}
		if !level.Covers(reservation.Quantity) {
			return domain.InventoryLevel{ProductID: reservation.ProductID, Quantity: level.Quantity}, nil
		}

		if err := inventory.Reserve(ctx, reservation); err != nil {
			return nil, errors.Wrap(err, "inventory reservation")
		}
		return domain.InventoryLevel{
			ProductID:   reservation.ProductID,
			Quantity:    level.Quantity - reservation.Quantity,
			IsAvailable: true,
		}, nil
	}
}
