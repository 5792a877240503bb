package mock

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/order"
	"github.com/coccinelle/backend/internal/domain/shared"
)

// returnLabelCost is the flat price of a mock return label
const returnLabelCost = 4.90

// Orders implements integration.OrderSystem over a Store
type Orders struct {
	store *Store
}

// Compile-time interface check
var _ integration.OrderSystem = (*Orders)(nil)

// NewOrders creates the order capability of a store
func NewOrders(store *Store) *Orders {
	return &Orders{store: store}
}

// GetOrder returns an order by id
func (o *Orders) GetOrder(_ context.Context, orderID string) (*order.Order, error) {
	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	ord, ok := s.orders[orderID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return cloneOrder(ord), nil
}

// GetOrderByNumber accepts the number with or without its leading "#"
func (o *Orders) GetOrderByNumber(_ context.Context, orderNumber string) (*order.Order, error) {
	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	want := strings.TrimPrefix(strings.TrimSpace(orderNumber), "#")
	for _, id := range s.orderOrder {
		if ord := s.orders[id]; strings.TrimPrefix(ord.OrderNumber, "#") == want {
			return cloneOrder(ord), nil
		}
	}
	return nil, order.ErrOrderNotFound
}

// ListOrders returns matching orders, newest first
func (o *Orders) ListOrders(_ context.Context, opts order.ListOptions) (shared.Paginated[order.Order], error) {
	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	page, perPage := opts.Page, opts.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	matched := []order.Order{}
	for _, id := range s.orderOrder {
		if ord := s.orders[id]; opts.Matches(ord) {
			matched = append(matched, *cloneOrder(ord))
		}
	}
	sort.SliceStable(matched, func(a, b int) bool { return matched[a].CreatedAt.After(matched[b].CreatedAt) })
	return paginate(matched, page, perPage), nil
}

// CreateOrder prices items from the catalog when they carry no price
func (o *Orders) CreateOrder(_ context.Context, params order.CreateParams) (*order.Order, error) {
	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(params.Items) == 0 {
		return nil, shared.NewValidationError("order: at least one item is required")
	}
	now := s.now()
	s.seq++
	number := strconv.Itoa(3000 + s.seq)
	ord := &order.Order{
		ID:                "ord_" + number,
		OrderNumber:       "#" + number,
		Customer:          params.Customer,
		Subtotal:          shared.Money{Currency: s.currency},
		Status:            order.StatusPending,
		PaymentStatus:     order.PaymentPending,
		FulfillmentStatus: order.FulfillmentUnfulfilled,
		ShippingAddress:   params.ShippingAddress,
		Shipping:          params.Shipping,
		Notes:             params.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for n, item := range params.Items {
		if item.Quantity <= 0 {
			return nil, shared.NewValidationError("order: item %d quantity must be positive", n+1)
		}
		if item.Price.Amount.IsZero() {
			p, ok := s.products[item.ProductID]
			if !ok {
				return nil, fmt.Errorf("%w: %s", inventory.ErrProductNotFound, item.ProductID)
			}
			item.Price = p.Price
			if item.Name == "" {
				item.Name = p.Name
			}
		}
		if item.ID == "" {
			item.ID = fmt.Sprintf("item_%s_%d", number, n+1)
		}
		item.Total = item.Price.Mul(item.Quantity)
		ord.Subtotal = ord.Subtotal.Add(item.Total)
		ord.Items = append(ord.Items, item)
	}
	ord.Total = ord.Subtotal
	if ord.Shipping != nil {
		ord.Total = ord.Total.Add(*ord.Shipping)
	}
	s.orders[ord.ID] = ord
	s.orderOrder = append(s.orderOrder, ord.ID)
	return cloneOrder(ord), nil
}

// UpdateOrder writes the non-empty update fields
func (o *Orders) UpdateOrder(_ context.Context, orderID string, update order.Update) (*order.Order, error) {
	return o.mutate(orderID, func(ord *order.Order, now time.Time) error {
		ord.Apply(update, now)
		return nil
	})
}

// CancelOrder cancels an order that has not shipped, keeping the reason
// as its note
func (o *Orders) CancelOrder(_ context.Context, orderID, reason string) (*order.Order, error) {
	return o.mutate(orderID, func(ord *order.Order, now time.Time) error {
		return ord.Cancel(reason, now)
	})
}

// MarkAsShipped records tracking details
func (o *Orders) MarkAsShipped(_ context.Context, orderID string, shipment order.Shipment) (*order.Order, error) {
	return o.mutate(orderID, func(ord *order.Order, now time.Time) error {
		return ord.MarkShipped(shipment, now)
	})
}

// MarkAsDelivered completes an order
func (o *Orders) MarkAsDelivered(_ context.Context, orderID string, deliveredAt time.Time) (*order.Order, error) {
	return o.mutate(orderID, func(ord *order.Order, now time.Time) error {
		return ord.MarkDelivered(deliveredAt, now)
	})
}

// CreateExchange opens a return or exchange in status requested
func (o *Orders) CreateExchange(_ context.Context, params order.ExchangeParams) (*order.Exchange, error) {
	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	ord, ok := s.orders[params.OrderID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	if len(params.ReturnItems) == 0 {
		return nil, shared.NewValidationError("order: an exchange needs at least one returned item")
	}
	ex := &order.Exchange{
		ID:            s.nextID("exch"),
		OrderID:       ord.ID,
		CustomerID:    ord.Customer.ID,
		ReturnItems:   append([]order.ExchangeItem(nil), params.ReturnItems...),
		ExchangeItems: append([]order.ExchangeItem(nil), params.ExchangeItems...),
		Status:        order.ExchangeRequested,
		Reason:        params.Reason,
		Notes:         params.Notes,
		CreatedAt:     s.now(),
	}
	s.exchanges[ex.ID] = ex
	out := *ex
	return &out, nil
}

// GetExchange returns an exchange by id
func (o *Orders) GetExchange(_ context.Context, exchangeID string) (*order.Exchange, error) {
	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.exchanges[exchangeID]
	if !ok {
		return nil, order.ErrExchangeNotFound
	}
	out := *ex
	return &out, nil
}

// UpdateExchangeStatus moves an exchange along its lifecycle
func (o *Orders) UpdateExchangeStatus(_ context.Context, exchangeID string, status order.ExchangeStatus) (*order.Exchange, error) {
	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.exchanges[exchangeID]
	if !ok {
		return nil, order.ErrExchangeNotFound
	}
	if err := ex.TransitionTo(status, s.now()); err != nil {
		return nil, err
	}
	out := *ex
	return &out, nil
}

// GenerateReturnLabel issues a flat-rate Colissimo label for an
// approved exchange
func (o *Orders) GenerateReturnLabel(_ context.Context, exchangeID string) (*order.ReturnLabel, error) {
	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	ex, ok := s.exchanges[exchangeID]
	if !ok {
		return nil, order.ErrExchangeNotFound
	}
	s.seq++
	label := order.ReturnLabel{
		URL:            fmt.Sprintf("https://labels.mock.coccinelle.local/%s.pdf", ex.ID),
		TrackingNumber: fmt.Sprintf("MOCK%d%04d", s.now().Unix(), s.seq),
		Carrier:        "Colissimo",
		Cost:           shared.NewMoney(returnLabelCost, s.currency),
	}
	if err := ex.AttachLabel(label, s.now()); err != nil {
		return nil, err
	}
	return &label, nil
}

// CheckHealth always reports connected
func (o *Orders) CheckHealth(context.Context) integration.Health {
	return integration.Healthy(integration.SystemMock, o.store.counts())
}

// TestConnection always succeeds
func (o *Orders) TestConnection(context.Context) error { return nil }

func (o *Orders) mutate(orderID string, fn func(ord *order.Order, now time.Time) error) (*order.Order, error) {
	s := o.store
	s.mu.Lock()
	defer s.mu.Unlock()

	ord, ok := s.orders[orderID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	working := cloneOrder(ord)
	if err := fn(working, s.now()); err != nil {
		return nil, err
	}
	s.orders[orderID] = working
	return cloneOrder(working), nil
}

func cloneOrder(o *order.Order) *order.Order {
	out := *o
	out.Items = append([]order.Item(nil), o.Items...)
	return &out
}
