// Package native exposes the platform's own database-backed inventory
// and customers through the connector interfaces, bound to one tenant.
package native

import (
	"context"
	"time"

	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// InventoryEngine is the tenant-scoped inventory and reservation service
type InventoryEngine interface {
	GetProduct(ctx context.Context, tenantID uuid.UUID, productID string) (*inventory.Product, error)
	GetProductVariant(ctx context.Context, tenantID uuid.UUID, productID, variantID string) (*inventory.Variant, error)
	GetProducts(ctx context.Context, tenantID uuid.UUID, productIDs []string) ([]inventory.Product, error)
	SearchProducts(ctx context.Context, tenantID uuid.UUID, query string, opts inventory.SearchOptions) ([]inventory.Product, error)
	ListProducts(ctx context.Context, tenantID uuid.UUID, opts inventory.ListOptions) (shared.Paginated[inventory.Product], error)
	CheckAvailability(ctx context.Context, tenantID uuid.UUID, productID, variantID string) (inventory.StockInfo, error)
	CheckAvailabilityBySku(ctx context.Context, tenantID uuid.UUID, sku string) (inventory.StockInfo, error)
	CheckBulkAvailability(ctx context.Context, tenantID uuid.UUID, items []inventory.StockItemRef) ([]inventory.StockInfo, error)
	UpdateStock(ctx context.Context, tenantID uuid.UUID, update inventory.StockUpdate) (inventory.StockInfo, error)
	ReserveProduct(ctx context.Context, tenantID uuid.UUID, req inventory.ReserveRequest) (*inventory.Reservation, error)
	CancelReservation(ctx context.Context, tenantID, reservationID uuid.UUID) error
	ExtendReservation(ctx context.Context, tenantID, reservationID uuid.UUID, additionalMinutes int) (*inventory.Reservation, error)
	GetCustomerReservations(ctx context.Context, tenantID uuid.UUID, customerID string) ([]inventory.Reservation, error)
}

// Connector binds the native services to a tenant
type Connector struct {
	tenantID  uuid.UUID
	engine    InventoryEngine
	customers customer.Repository
	now       func() time.Time
}

// Compile-time interface checks
var (
	_ integration.InventorySystem = (*Connector)(nil)
	_ integration.CustomerSystem  = (*Connector)(nil)
)

// New creates a native connector for tenantID
func New(tenantID uuid.UUID, engine InventoryEngine, customers customer.Repository) *Connector {
	return &Connector{
		tenantID:  tenantID,
		engine:    engine,
		customers: customers,
		now:       time.Now,
	}
}

// Builder returns a connector builder for the factory
func Builder(engine InventoryEngine, customers customer.Repository) func(ctx context.Context, cfg *integration.IntegrationConfig) (integration.Connector, error) {
	return func(_ context.Context, ic *integration.IntegrationConfig) (integration.Connector, error) {
		c := New(ic.TenantID, engine, customers)
		return integration.NewConnector(integration.SystemNative, c, integration.Capabilities{
			Customers: c,
			Inventory: c,
		}), nil
	}
}

// CheckHealth probes the customer table
func (c *Connector) CheckHealth(ctx context.Context) integration.Health {
	start := c.now()
	if err := c.TestConnection(ctx); err != nil {
		return integration.Unhealthy(integration.SystemNative, err)
	}
	h := integration.Healthy(integration.SystemNative, nil)
	h.Latency = c.now().Sub(start)
	return h
}

// TestConnection runs a one-row query
func (c *Connector) TestConnection(ctx context.Context) error {
	_, err := c.customers.List(ctx, c.tenantID, 1)
	return err
}

// ---------------------------------------------------------------------------
// Inventory
// ---------------------------------------------------------------------------

func (c *Connector) GetProduct(ctx context.Context, productID string) (*inventory.Product, error) {
	return c.engine.GetProduct(ctx, c.tenantID, productID)
}

func (c *Connector) GetProductVariant(ctx context.Context, productID, variantID string) (*inventory.Variant, error) {
	return c.engine.GetProductVariant(ctx, c.tenantID, productID, variantID)
}

func (c *Connector) GetProducts(ctx context.Context, productIDs []string) ([]inventory.Product, error) {
	return c.engine.GetProducts(ctx, c.tenantID, productIDs)
}

func (c *Connector) SearchProducts(ctx context.Context, query string, opts inventory.SearchOptions) ([]inventory.Product, error) {
	return c.engine.SearchProducts(ctx, c.tenantID, query, opts)
}

func (c *Connector) ListProducts(ctx context.Context, opts inventory.ListOptions) (shared.Paginated[inventory.Product], error) {
	return c.engine.ListProducts(ctx, c.tenantID, opts)
}

func (c *Connector) CheckAvailability(ctx context.Context, productID, variantID string) (inventory.StockInfo, error) {
	return c.engine.CheckAvailability(ctx, c.tenantID, productID, variantID)
}

func (c *Connector) CheckAvailabilityBySku(ctx context.Context, sku string) (inventory.StockInfo, error) {
	return c.engine.CheckAvailabilityBySku(ctx, c.tenantID, sku)
}

func (c *Connector) CheckBulkAvailability(ctx context.Context, items []inventory.StockItemRef) ([]inventory.StockInfo, error) {
	return c.engine.CheckBulkAvailability(ctx, c.tenantID, items)
}

func (c *Connector) UpdateStock(ctx context.Context, update inventory.StockUpdate) (inventory.StockInfo, error) {
	return c.engine.UpdateStock(ctx, c.tenantID, update)
}

func (c *Connector) ReserveProduct(ctx context.Context, req inventory.ReserveRequest) (*inventory.Reservation, error) {
	return c.engine.ReserveProduct(ctx, c.tenantID, req)
}

func (c *Connector) CancelReservation(ctx context.Context, reservationID uuid.UUID) error {
	return c.engine.CancelReservation(ctx, c.tenantID, reservationID)
}

func (c *Connector) ExtendReservation(ctx context.Context, reservationID uuid.UUID, additionalMinutes int) (*inventory.Reservation, error) {
	return c.engine.ExtendReservation(ctx, c.tenantID, reservationID, additionalMinutes)
}

func (c *Connector) GetCustomerReservations(ctx context.Context, customerID string) ([]inventory.Reservation, error) {
	return c.engine.GetCustomerReservations(ctx, c.tenantID, customerID)
}

// ---------------------------------------------------------------------------
// Customers
// ---------------------------------------------------------------------------

func (c *Connector) GetCustomer(ctx context.Context, id string) (*customer.Customer, error) {
	return c.customers.FindByID(ctx, c.tenantID, id)
}

// GetCustomerByEmail returns nil, nil when no customer has the address
func (c *Connector) GetCustomerByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	if customer.NormalizeEmail(email) == "" {
		return nil, nil
	}
	found, err := c.customers.FindByEmail(ctx, c.tenantID, email)
	if shared.CodeOf(err) == shared.CodeNotFound {
		return nil, nil
	}
	return found, err
}

func (c *Connector) SearchCustomers(ctx context.Context, query string, limit int) ([]customer.Customer, error) {
	return c.customers.Search(ctx, c.tenantID, query, limit)
}

// CreateCustomer stores a new local customer. The email must not be in use.
func (c *Connector) CreateCustomer(ctx context.Context, in customer.Input) (*customer.Customer, error) {
	existing, err := c.GetCustomerByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, customer.ErrDuplicateEmail
	}
	created, err := customer.New(c.tenantID, in)
	if err != nil {
		return nil, err
	}
	if err := c.customers.Save(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Connector) UpdateCustomer(ctx context.Context, id string, in customer.Input) (*customer.Customer, error) {
	existing, err := c.customers.FindByID(ctx, c.tenantID, id)
	if err != nil {
		return nil, err
	}
	if in.Email != "" {
		other, err := c.GetCustomerByEmail(ctx, in.Email)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != existing.ID {
			return nil, customer.ErrDuplicateEmail
		}
	}
	existing.Apply(in, c.now())
	if err := c.customers.Save(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}
