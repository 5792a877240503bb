package mock

import (
	_ "embed"
	"fmt"
	"time"

	"github.com/coccinelle/backend/internal/domain/customer"
	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/order"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

type seedFile struct {
	Currency  string         `yaml:"currency"`
	Location  string         `yaml:"location"`
	Products  []seedProduct  `yaml:"products"`
	Customers []seedCustomer `yaml:"customers"`
	Orders    []seedOrder    `yaml:"orders"`
}

type seedVariant struct {
	ID         string            `yaml:"id"`
	Name       string            `yaml:"name"`
	SKU        string            `yaml:"sku"`
	Stock      int               `yaml:"stock"`
	Attributes map[string]string `yaml:"attributes"`
}

type seedProduct struct {
	ID             string        `yaml:"id"`
	ExternalID     string        `yaml:"external_id"`
	Name           string        `yaml:"name"`
	Description    string        `yaml:"description"`
	SKU            string        `yaml:"sku"`
	Price          float64       `yaml:"price"`
	CompareAtPrice float64       `yaml:"compare_at_price"`
	Stock          int           `yaml:"stock"`
	Categories     []string      `yaml:"categories"`
	Tags           []string      `yaml:"tags"`
	Variants       []seedVariant `yaml:"variants"`
	CreatedAt      time.Time     `yaml:"created_at"`
	UpdatedAt      time.Time     `yaml:"updated_at"`
}

type seedCustomer struct {
	ID               string    `yaml:"id"`
	FirstName        string    `yaml:"first_name"`
	LastName         string    `yaml:"last_name"`
	Email            string    `yaml:"email"`
	Phone            string    `yaml:"phone"`
	PreferredChannel string    `yaml:"preferred_channel"`
	Tags             []string  `yaml:"tags"`
	Segment          string    `yaml:"segment"`
	CreatedAt        time.Time `yaml:"created_at"`
}

type seedItem struct {
	ID        string  `yaml:"id"`
	ProductID string  `yaml:"product_id"`
	VariantID string  `yaml:"variant_id"`
	Name      string  `yaml:"name"`
	SKU       string  `yaml:"sku"`
	Quantity  int     `yaml:"quantity"`
	Price     float64 `yaml:"price"`
}

type seedOrder struct {
	ID                string     `yaml:"id"`
	Number            string     `yaml:"number"`
	CustomerID        string     `yaml:"customer_id"`
	Status            string     `yaml:"status"`
	PaymentStatus     string     `yaml:"payment_status"`
	FulfillmentStatus string     `yaml:"fulfillment_status"`
	Shipping          float64    `yaml:"shipping"`
	TrackingNumber    string     `yaml:"tracking_number"`
	Carrier           string     `yaml:"carrier"`
	Items             []seedItem `yaml:"items"`
	CreatedAt         time.Time  `yaml:"created_at"`
	UpdatedAt         time.Time  `yaml:"updated_at"`
	ShippedAt         *time.Time `yaml:"shipped_at"`
	DeliveredAt       *time.Time `yaml:"delivered_at"`
}

// parseSeed decodes seed data and checks its references
func parseSeed(data []byte) (*seedFile, error) {
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("mock: failed to parse seed: %w", err)
	}
	if seed.Currency == "" {
		seed.Currency = "EUR"
	}
	customers := make(map[string]bool, len(seed.Customers))
	for _, c := range seed.Customers {
		customers[c.ID] = true
	}
	for _, o := range seed.Orders {
		if !customers[o.CustomerID] {
			return nil, fmt.Errorf("mock: order %s references unknown customer %s", o.ID, o.CustomerID)
		}
	}
	return &seed, nil
}

func (s *seedFile) products(tenantID uuid.UUID) []inventory.Product {
	products := make([]inventory.Product, 0, len(s.Products))
	for _, sp := range s.Products {
		p := inventory.Product{
			ID:            sp.ID,
			TenantID:      tenantID,
			ExternalID:    sp.ExternalID,
			Name:          sp.Name,
			Description:   sp.Description,
			SKU:           sp.SKU,
			Price:         s.money(sp.Price),
			StockQuantity: sp.Stock,
			Categories:    append([]string{}, sp.Categories...),
			Tags:          append([]string{}, sp.Tags...),
			CreatedAt:     sp.CreatedAt,
			UpdatedAt:     sp.UpdatedAt,
		}
		if sp.CompareAtPrice > 0 {
			compare := s.money(sp.CompareAtPrice)
			p.CompareAtPrice = &compare
		}
		for _, sv := range sp.Variants {
			p.Variants = append(p.Variants, inventory.Variant{
				ID:            sv.ID,
				ProductID:     sp.ID,
				Name:          sv.Name,
				SKU:           sv.SKU,
				StockQuantity: sv.Stock,
				Attributes:    sv.Attributes,
			})
		}
		products = append(products, p)
	}
	return products
}

func (s *seedFile) customers(tenantID uuid.UUID) []customer.Customer {
	customers := make([]customer.Customer, 0, len(s.Customers))
	for _, sc := range s.Customers {
		customers = append(customers, customer.Customer{
			ID:               sc.ID,
			TenantID:         tenantID,
			FirstName:        sc.FirstName,
			LastName:         sc.LastName,
			Email:            customer.NormalizeEmail(sc.Email),
			Phone:            sc.Phone,
			PreferredChannel: customer.Channel(sc.PreferredChannel),
			Tags:             append([]string{}, sc.Tags...),
			Segment:          sc.Segment,
			CreatedAt:        sc.CreatedAt,
			UpdatedAt:        sc.CreatedAt,
		})
	}
	return customers
}

func (s *seedFile) orders() []order.Order {
	byID := make(map[string]seedCustomer, len(s.Customers))
	for _, c := range s.Customers {
		byID[c.ID] = c
	}
	orders := make([]order.Order, 0, len(s.Orders))
	for _, so := range s.Orders {
		c := byID[so.CustomerID]
		o := order.Order{
			ID:          so.ID,
			OrderNumber: so.Number,
			Customer: order.Customer{
				ID:        c.ID,
				FirstName: c.FirstName,
				LastName:  c.LastName,
				Email:     customer.NormalizeEmail(c.Email),
				Phone:     c.Phone,
			},
			Status:            order.Status(so.Status),
			PaymentStatus:     order.PaymentStatus(so.PaymentStatus),
			FulfillmentStatus: order.FulfillmentStatus(so.FulfillmentStatus),
			TrackingNumber:    so.TrackingNumber,
			Carrier:           so.Carrier,
			CreatedAt:         so.CreatedAt,
			UpdatedAt:         so.UpdatedAt,
			ShippedAt:         so.ShippedAt,
			DeliveredAt:       so.DeliveredAt,
		}
		subtotal := s.money(0)
		for _, si := range so.Items {
			price := s.money(si.Price)
			item := order.Item{
				ID:        si.ID,
				ProductID: si.ProductID,
				VariantID: si.VariantID,
				Name:      si.Name,
				SKU:       si.SKU,
				Quantity:  si.Quantity,
				Price:     price,
				Total:     price.Mul(si.Quantity),
			}
			subtotal = subtotal.Add(item.Total)
			o.Items = append(o.Items, item)
		}
		shipping := s.money(so.Shipping)
		o.Subtotal = subtotal
		o.Shipping = &shipping
		o.Total = subtotal.Add(shipping)
		orders = append(orders, o)
	}
	return orders
}

func (s *seedFile) money(amount float64) shared.Money {
	return shared.Money{Amount: decimal.NewFromFloat(amount), Currency: s.Currency}
}
