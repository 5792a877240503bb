package woocommerce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/domain/order"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/coccinelle/backend/internal/infrastructure/connector/httpx"
)

const (
	ordersPath     = "/orders"
	defaultPerPage = 20
	// WooCommerce caps per_page at 100
	maxPerPage = 100
)

// Adapter implements integration.OrderSystem for WooCommerce orders.
// Returns and exchanges are not exposed by the REST API and return
// integration.ErrOperationNotSupported.
type Adapter struct {
	client   *httpx.Client
	currency string
	now      func() time.Time
}

// Compile-time interface check
var _ integration.OrderSystem = (*Adapter)(nil)

// NewAdapter creates a WooCommerce adapter
func NewAdapter(cfg *Config, base httpx.Config, opts ...httpx.Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base.System = integration.SystemWooCommerce
	base.BaseURL = cfg.BaseURL()
	base.Authorize = httpx.BasicAuth(cfg.ConsumerKey, cfg.ConsumerSecret)
	return &Adapter{
		client:   httpx.New(base, opts...),
		currency: cfg.Currency,
		now:      time.Now,
	}, nil
}

// Builder returns a connector builder for the factory
func Builder(base httpx.Config, opts ...httpx.Option) func(ctx context.Context, cfg *integration.IntegrationConfig) (integration.Connector, error) {
	return func(_ context.Context, ic *integration.IntegrationConfig) (integration.Connector, error) {
		adapter, err := NewAdapter(ConfigFrom(ic), base, opts...)
		if err != nil {
			return nil, err
		}
		return integration.NewConnector(integration.SystemWooCommerce, adapter, integration.Capabilities{
			Orders: adapter,
		}), nil
	}
}

// GetOrder retrieves an order by its WooCommerce ID
func (a *Adapter) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	id, err := parseID("order id", orderID)
	if err != nil {
		return nil, err
	}
	raw, err := a.getRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	return toOrder(raw, a.currency), nil
}

// GetOrderByNumber searches for an order by its display number
func (a *Adapter) GetOrderByNumber(ctx context.Context, orderNumber string) (*order.Order, error) {
	number := strings.TrimPrefix(strings.TrimSpace(orderNumber), "#")
	if number == "" {
		return nil, shared.NewValidationError("woocommerce: order number is required")
	}
	var orders []wcOrder
	err := a.client.Do(ctx, httpx.Request{
		Operation: "search_orders",
		Method:    http.MethodGet,
		Path:      ordersPath,
		Query:     url.Values{"search": {number}, "per_page": {strconv.Itoa(defaultPerPage)}},
	}, &orders)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		if orders[i].Number == number {
			return toOrder(&orders[i], a.currency), nil
		}
	}
	return nil, fmt.Errorf("%w: woocommerce order #%s", order.ErrOrderNotFound, number)
}

// ListOrders pages through orders, newest first
func (a *Adapter) ListOrders(ctx context.Context, opts order.ListOptions) (shared.Paginated[order.Order], error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	perPage := opts.PerPage
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	query := url.Values{
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(perPage)},
		"orderby":  {"date"},
		"order":    {"desc"},
	}
	if opts.CustomerID != "" {
		id, err := parseID("customer id", opts.CustomerID)
		if err != nil {
			return shared.Paginated[order.Order]{}, err
		}
		query.Set("customer", strconv.FormatInt(id, 10))
	}
	if opts.Status != "" {
		if status := statusToWC(opts.Status); status != "" {
			query.Set("status", status)
		}
	}

	var (
		raw    []wcOrder
		header http.Header
	)
	err := a.client.Do(ctx, httpx.Request{
		Operation:      "list_orders",
		Method:         http.MethodGet,
		Path:           ordersPath,
		Query:          query,
		ResponseHeader: &header,
	}, &raw)
	if err != nil {
		return shared.Paginated[order.Order]{}, err
	}

	orders := make([]order.Order, 0, len(raw))
	for i := range raw {
		orders = append(orders, *toOrder(&raw[i], a.currency))
	}
	total, err := strconv.ParseInt(header.Get("X-WP-Total"), 10, 64)
	if err != nil {
		total = int64((page-1)*perPage + len(orders))
	}
	return shared.NewPaginated(orders, total, page, perPage), nil
}

// CreateOrder creates an order priced by the store catalog
func (a *Adapter) CreateOrder(ctx context.Context, params order.CreateParams) (*order.Order, error) {
	if len(params.Items) == 0 {
		return nil, shared.NewValidationError("woocommerce: order needs at least one item")
	}
	body := wcOrderWrite{
		Billing: &wcBilling{
			FirstName: params.Customer.FirstName,
			LastName:  params.Customer.LastName,
			Email:     params.Customer.Email,
			Phone:     params.Customer.Phone,
		},
		Shipping: fromAddress(params.ShippingAddress),
	}
	if params.Customer.ID != "" {
		if id, err := strconv.ParseInt(params.Customer.ID, 10, 64); err == nil {
			body.CustomerID = id
		}
	}
	if params.Notes != "" {
		body.CustomerNote = &params.Notes
	}
	for _, item := range params.Items {
		productID, err := parseID("product id", item.ProductID)
		if err != nil {
			return nil, err
		}
		line := wcLineItemWrite{ProductID: productID, Quantity: item.Quantity}
		if item.VariantID != "" {
			if line.VariationID, err = parseID("variant id", item.VariantID); err != nil {
				return nil, err
			}
		}
		body.LineItems = append(body.LineItems, line)
	}
	if params.Shipping != nil {
		body.ShippingLines = []wcShippingLine{{
			MethodID:    "flat_rate",
			MethodTitle: "Shipping",
			Total:       params.Shipping.Amount.StringFixed(2),
		}}
	}

	var created wcOrder
	err := a.client.Do(ctx, httpx.Request{
		Operation: "create_order",
		Method:    http.MethodPost,
		Path:      ordersPath,
		Body:      body,
	}, &created)
	if err != nil {
		return nil, err
	}
	return toOrder(&created, a.currency), nil
}

// UpdateOrder writes status, payment, notes and shipping address.
// Fulfillment status is derived by WooCommerce and cannot be set.
func (a *Adapter) UpdateOrder(ctx context.Context, orderID string, update order.Update) (*order.Order, error) {
	id, err := parseID("order id", orderID)
	if err != nil {
		return nil, err
	}
	body := wcOrderWrite{
		Status:       statusToWC(update.Status),
		CustomerNote: update.Notes,
		SetPaid:      update.PaymentStatus == order.PaymentPaid,
		Shipping:     fromAddress(update.ShippingAddress),
	}
	return a.put(ctx, "update_order", id, body)
}

// CancelOrder cancels an order that has not shipped
func (a *Adapter) CancelOrder(ctx context.Context, orderID, reason string) (*order.Order, error) {
	id, err := parseID("order id", orderID)
	if err != nil {
		return nil, err
	}
	current, err := a.getRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	o := toOrder(current, a.currency)
	if o.Status == order.StatusCancelled {
		return o, nil
	}
	if err := o.Cancel(reason, a.now()); err != nil {
		return nil, err
	}
	body := wcOrderWrite{Status: wcCancelled}
	if reason != "" {
		body.CustomerNote = &reason
	}
	return a.put(ctx, "cancel_order", id, body)
}

// MarkAsShipped stores tracking details as order meta
func (a *Adapter) MarkAsShipped(ctx context.Context, orderID string, shipment order.Shipment) (*order.Order, error) {
	id, err := parseID("order id", orderID)
	if err != nil {
		return nil, err
	}
	current, err := a.getRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	o := toOrder(current, a.currency)
	if err := o.MarkShipped(shipment, a.now()); err != nil {
		return nil, err
	}
	return a.put(ctx, "mark_shipped", id, wcOrderWrite{
		MetaData: []wcMeta{
			{Key: metaTrackingNumber, Value: o.TrackingNumber},
			{Key: metaCarrier, Value: o.Carrier},
			{Key: metaTrackingURL, Value: o.TrackingURL},
			{Key: metaShippedAt, Value: o.ShippedAt.UTC().Format(time.RFC3339)},
		},
	})
}

// MarkAsDelivered completes the order
func (a *Adapter) MarkAsDelivered(ctx context.Context, orderID string, deliveredAt time.Time) (*order.Order, error) {
	id, err := parseID("order id", orderID)
	if err != nil {
		return nil, err
	}
	current, err := a.getRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	o := toOrder(current, a.currency)
	if err := o.MarkDelivered(deliveredAt, a.now()); err != nil {
		return nil, err
	}
	return a.put(ctx, "mark_delivered", id, wcOrderWrite{
		Status:   wcCompleted,
		MetaData: []wcMeta{{Key: metaDeliveredAt, Value: deliveredAt.UTC().Format(time.RFC3339)}},
	})
}

// CreateExchange is not supported by WooCommerce
func (a *Adapter) CreateExchange(context.Context, order.ExchangeParams) (*order.Exchange, error) {
	return nil, unsupported("create_exchange")
}

// GetExchange is not supported by WooCommerce
func (a *Adapter) GetExchange(context.Context, string) (*order.Exchange, error) {
	return nil, unsupported("get_exchange")
}

// UpdateExchangeStatus is not supported by WooCommerce
func (a *Adapter) UpdateExchangeStatus(context.Context, string, order.ExchangeStatus) (*order.Exchange, error) {
	return nil, unsupported("update_exchange_status")
}

// GenerateReturnLabel is not supported by WooCommerce
func (a *Adapter) GenerateReturnLabel(context.Context, string) (*order.ReturnLabel, error) {
	return nil, unsupported("generate_return_label")
}

// TestConnection fetches a single order
func (a *Adapter) TestConnection(ctx context.Context) error {
	var orders []wcOrder
	return a.client.Do(ctx, httpx.Request{
		Operation: "test_connection",
		Method:    http.MethodGet,
		Path:      ordersPath,
		Query:     url.Values{"per_page": {"1"}},
	}, &orders)
}

// CheckHealth reports the API reachability
func (a *Adapter) CheckHealth(ctx context.Context) integration.Health {
	started := a.now()
	var h integration.Health
	if err := a.TestConnection(ctx); err != nil {
		h = integration.Unhealthy(integration.SystemWooCommerce, err)
	} else {
		h = integration.Healthy(integration.SystemWooCommerce, map[string]any{"api": "wc/v3"})
	}
	h.Latency = a.now().Sub(started)
	return h
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

func (a *Adapter) getRaw(ctx context.Context, id int64) (*wcOrder, error) {
	var raw wcOrder
	err := a.client.Do(ctx, httpx.Request{
		Operation: "get_order",
		Method:    http.MethodGet,
		Path:      ordersPath + "/" + strconv.FormatInt(id, 10),
	}, &raw)
	if err != nil {
		return nil, err
	}
	return &raw, nil
}

func (a *Adapter) put(ctx context.Context, operation string, id int64, body wcOrderWrite) (*order.Order, error) {
	var updated wcOrder
	err := a.client.Do(ctx, httpx.Request{
		Operation: operation,
		Method:    http.MethodPut,
		Path:      ordersPath + "/" + strconv.FormatInt(id, 10),
		Body:      body,
	}, &updated)
	if err != nil {
		return nil, err
	}
	return toOrder(&updated, a.currency), nil
}

func unsupported(operation string) error {
	return fmt.Errorf("%w: woocommerce %s", integration.ErrOperationNotSupported, operation)
}
