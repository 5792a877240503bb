package mock

import (
	"context"

	"github.com/coccinelle/backend/internal/domain/integration"
)

// NewConnector exposes a store through all three capabilities
func NewConnector(store *Store) integration.Connector {
	inv := NewInventory(store)
	return integration.NewConnector(integration.SystemMock, inv, integration.Capabilities{
		Customers: NewCustomers(store),
		Inventory: inv,
		Orders:    NewOrders(store),
	})
}

// Builder returns a connector builder for the factory. Every built
// connector starts from a fresh seeded store for its tenant.
func Builder(opts ...StoreOption) func(ctx context.Context, cfg *integration.IntegrationConfig) (integration.Connector, error) {
	return func(_ context.Context, ic *integration.IntegrationConfig) (integration.Connector, error) {
		store, err := NewStore(ic.TenantID, opts...)
		if err != nil {
			return nil, err
		}
		return NewConnector(store), nil
	}
}
