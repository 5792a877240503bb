package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/order"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// HealthChecker is implemented by every connector. CheckHealth reports
// failures in the returned Health and never panics or errors.
type HealthChecker interface {
	CheckHealth(ctx context.Context) Health
	TestConnection(ctx context.Context) error
}

// CustomerSystem reads and writes CRM contacts
type CustomerSystem interface {
	HealthChecker
	GetCustomer(ctx context.Context, id string) (*customer.Customer, error)
	// GetCustomerByEmail returns nil, nil when no contact has the address.
	GetCustomerByEmail(ctx context.Context, email string) (*customer.Customer, error)
	SearchCustomers(ctx context.Context, query string, limit int) ([]customer.Customer, error)
	CreateCustomer(ctx context.Context, in customer.Input) (*customer.Customer, error)
	UpdateCustomer(ctx context.Context, id string, in customer.Input) (*customer.Customer, error)
}

// InventorySystem exposes catalog, stock and reservations
type InventorySystem interface {
	HealthChecker
	GetProduct(ctx context.Context, productID string) (*inventory.Product, error)
	GetProductVariant(ctx context.Context, productID, variantID string) (*inventory.Variant, error)
	GetProducts(ctx context.Context, productIDs []string) ([]inventory.Product, error)
	SearchProducts(ctx context.Context, query string, opts inventory.SearchOptions) ([]inventory.Product, error)
	ListProducts(ctx context.Context, opts inventory.ListOptions) (shared.Paginated[inventory.Product], error)

	CheckAvailability(ctx context.Context, productID, variantID string) (inventory.StockInfo, error)
	CheckAvailabilityBySku(ctx context.Context, sku string) (inventory.StockInfo, error)
	CheckBulkAvailability(ctx context.Context, items []inventory.StockItemRef) ([]inventory.StockInfo, error)
	UpdateStock(ctx context.Context, update inventory.StockUpdate) (inventory.StockInfo, error)

	ReserveProduct(ctx context.Context, req inventory.ReserveRequest) (*inventory.Reservation, error)
	CancelReservation(ctx context.Context, reservationID uuid.UUID) error
	ExtendReservation(ctx context.Context, reservationID uuid.UUID, additionalMinutes int) (*inventory.Reservation, error)
	GetCustomerReservations(ctx context.Context, customerID string) ([]inventory.Reservation, error)
}

// OrderSystem exposes orders and exchanges
type OrderSystem interface {
	HealthChecker
	GetOrder(ctx context.Context, orderID string) (*order.Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string) (*order.Order, error)
	ListOrders(ctx context.Context, opts order.ListOptions) (shared.Paginated[order.Order], error)
	CreateOrder(ctx context.Context, params order.CreateParams) (*order.Order, error)
	UpdateOrder(ctx context.Context, orderID string, update order.Update) (*order.Order, error)
	CancelOrder(ctx context.Context, orderID, reason string) (*order.Order, error)
	MarkAsShipped(ctx context.Context, orderID string, shipment order.Shipment) (*order.Order, error)
	MarkAsDelivered(ctx context.Context, orderID string, deliveredAt time.Time) (*order.Order, error)

	CreateExchange(ctx context.Context, params order.ExchangeParams) (*order.Exchange, error)
	GetExchange(ctx context.Context, exchangeID string) (*order.Exchange, error)
	UpdateExchangeStatus(ctx context.Context, exchangeID string, status order.ExchangeStatus) (*order.Exchange, error)
	GenerateReturnLabel(ctx context.Context, exchangeID string) (*order.ReturnLabel, error)
}

// ---------------------------------------------------------------------------
// Connector
// ---------------------------------------------------------------------------

// Connector is one tenant's handle on one system. It exposes the subset
// of capabilities the platform supports.
type Connector interface {
	HealthChecker
	SystemType() SystemType
	Customers() (CustomerSystem, bool)
	Inventory() (InventorySystem, bool)
	Orders() (OrderSystem, bool)
}

// Capabilities groups the capability implementations of a connector.
// A nil field means the capability is not supported.
type Capabilities struct {
	Customers CustomerSystem
	Inventory InventorySystem
	Orders    OrderSystem
}

type connector struct {
	HealthChecker
	system SystemType
	caps   Capabilities
}

// NewConnector assembles a Connector from its capabilities
func NewConnector(system SystemType, health HealthChecker, caps Capabilities) Connector {
	return &connector{HealthChecker: health, system: system, caps: caps}
}

func (c *connector) SystemType() SystemType { return c.system }

func (c *connector) Customers() (CustomerSystem, bool) {
	return c.caps.Customers, c.caps.Customers != nil
}

func (c *connector) Inventory() (InventorySystem, bool) {
	return c.caps.Inventory, c.caps.Inventory != nil
}

func (c *connector) Orders() (OrderSystem, bool) {
	return c.caps.Orders, c.caps.Orders != nil
}

// RequireCustomers returns the connector's CustomerSystem or ErrCapabilityNotSupported
func RequireCustomers(c Connector) (CustomerSystem, error) {
	if cs, ok := c.Customers(); ok {
		return cs, nil
	}
	return nil, capabilityError(c, "customers")
}

// RequireInventory returns the connector's InventorySystem or ErrCapabilityNotSupported
func RequireInventory(c Connector) (InventorySystem, error) {
	if is, ok := c.Inventory(); ok {
		return is, nil
	}
	return nil, capabilityError(c, "inventory")
}

// RequireOrders returns the connector's OrderSystem or ErrCapabilityNotSupported
func RequireOrders(c Connector) (OrderSystem, error) {
	if orders, ok := c.Orders(); ok {
		return orders, nil
	}
	return nil, capabilityError(c, "orders")
}

func capabilityError(c Connector, capability string) error {
	return fmt.Errorf("%w: %s has no %s", ErrCapabilityNotSupported, c.SystemType(), capability)
}
