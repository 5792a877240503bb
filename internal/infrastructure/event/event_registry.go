package event

import (
	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/domain/inventory"
)

// RegisterAllEvents registers every published domain event with the serializer
func RegisterAllEvents(serializer *EventSerializer) {
	for _, eventType := range []string{
		inventory.EventTypeReservationPlaced,
		inventory.EventTypeReservationExtended,
		inventory.EventTypeReservationCancelled,
		inventory.EventTypeReservationExpired,
		inventory.EventTypeReservationFulfilled,
	} {
		serializer.Register(eventType, &inventory.ReservationEvent{})
	}
	serializer.Register(inventory.EventTypeStockUpdated, &inventory.StockUpdatedEvent{})
	serializer.Register(integration.EventTypeCustomerSynced, &integration.CustomerSyncedEvent{})
}
