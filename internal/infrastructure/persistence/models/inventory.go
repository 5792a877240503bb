package models

import (
	"time"

	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductModel is the persistence model for the Product entity.
// Products are keyed by (tenant_id, id) since catalog ids come from
// the tenant's own catalog.
type ProductModel struct {
	TenantID        uuid.UUID        `gorm:"type:uuid;primaryKey"`
	ID              string           `gorm:"type:varchar(64);primaryKey"`
	ExternalID      string           `gorm:"type:varchar(100);index"`
	Name            string           `gorm:"type:varchar(200);not null"`
	Description     string           `gorm:"type:text"`
	SKU             string           `gorm:"column:sku;type:varchar(100);not null;index"`
	PriceAmount     decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"`
	Currency        string           `gorm:"type:varchar(3);not null;default:'EUR'"`
	CompareAtAmount *decimal.Decimal `gorm:"type:decimal(18,4)"`
	StockQuantity   int              `gorm:"not null;default:0"`
	Categories      string           `gorm:"type:jsonb"`
	Tags            string           `gorm:"type:jsonb"`
	CreatedAt       time.Time        `gorm:"not null"`
	UpdatedAt       time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the persistence model to a domain Product. Variants
// are attached by the repository.
func (m *ProductModel) ToDomain(variants []VariantModel) *inventory.Product {
	p := &inventory.Product{
		ID:            m.ID,
		TenantID:      m.TenantID,
		ExternalID:    m.ExternalID,
		Name:          m.Name,
		Description:   m.Description,
		SKU:           m.SKU,
		Price:         shared.Money{Amount: m.PriceAmount, Currency: m.Currency},
		StockQuantity: m.StockQuantity,
		Categories:    decodeStrings(m.Categories),
		Tags:          decodeStrings(m.Tags),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.CompareAtAmount != nil {
		p.CompareAtPrice = &shared.Money{Amount: *m.CompareAtAmount, Currency: m.Currency}
	}
	for i := range variants {
		p.Variants = append(p.Variants, *variants[i].ToDomain())
	}
	return p
}

// ProductModelFromDomain creates a persistence model and its variant rows
func ProductModelFromDomain(p *inventory.Product) (*ProductModel, []VariantModel) {
	m := &ProductModel{
		TenantID:      p.TenantID,
		ID:            p.ID,
		ExternalID:    p.ExternalID,
		Name:          p.Name,
		Description:   p.Description,
		SKU:           p.SKU,
		PriceAmount:   p.Price.Amount,
		Currency:      p.Price.Currency,
		StockQuantity: p.StockQuantity,
		Categories:    encodeJSON(nonNil(p.Categories)),
		Tags:          encodeJSON(nonNil(p.Tags)),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.CompareAtPrice != nil {
		amount := p.CompareAtPrice.Amount
		m.CompareAtAmount = &amount
	}
	variants := make([]VariantModel, len(p.Variants))
	for i := range p.Variants {
		variants[i] = *VariantModelFromDomain(p.TenantID, p.ID, &p.Variants[i])
	}
	return m, variants
}

// VariantModel is the persistence model for a product variant
type VariantModel struct {
	TenantID      uuid.UUID        `gorm:"type:uuid;primaryKey"`
	ID            string           `gorm:"type:varchar(64);primaryKey"`
	ProductID     string           `gorm:"type:varchar(64);not null;index"`
	Name          string           `gorm:"type:varchar(200);not null"`
	SKU           string           `gorm:"column:sku;type:varchar(100);not null;index"`
	PriceAmount   *decimal.Decimal `gorm:"type:decimal(18,4)"`
	Currency      string           `gorm:"type:varchar(3)"`
	StockQuantity int              `gorm:"not null;default:0"`
	Attributes    string           `gorm:"type:jsonb"`
	Position      int              `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (VariantModel) TableName() string {
	return "product_variants"
}

// ToDomain converts the persistence model to a domain Variant
func (m *VariantModel) ToDomain() *inventory.Variant {
	v := &inventory.Variant{
		ID:            m.ID,
		ProductID:     m.ProductID,
		Name:          m.Name,
		SKU:           m.SKU,
		StockQuantity: m.StockQuantity,
		Attributes:    decodeStringMap(m.Attributes),
	}
	if m.PriceAmount != nil {
		v.Price = &shared.Money{Amount: *m.PriceAmount, Currency: m.Currency}
	}
	return v
}

// VariantModelFromDomain creates a persistence model from a domain Variant
func VariantModelFromDomain(tenantID uuid.UUID, productID string, v *inventory.Variant) *VariantModel {
	m := &VariantModel{
		TenantID:      tenantID,
		ID:            v.ID,
		ProductID:     productID,
		Name:          v.Name,
		SKU:           v.SKU,
		StockQuantity: v.StockQuantity,
		Attributes:    encodeJSON(v.Attributes),
	}
	if v.Price != nil {
		amount := v.Price.Amount
		m.PriceAmount = &amount
		m.Currency = v.Price.Currency
	}
	return m
}

// ReservationModel is the persistence model for the Reservation entity
type ReservationModel struct {
	TenantModel
	ProductID  string    `gorm:"type:varchar(64);not null;index:idx_reservation_item,priority:1"`
	VariantID  string    `gorm:"type:varchar(64);not null;default:'';index:idx_reservation_item,priority:2"`
	CustomerID string    `gorm:"type:varchar(64);not null;index"`
	Quantity   int       `gorm:"not null"`
	Status     string    `gorm:"type:varchar(20);not null;default:'active';index:idx_reservation_status_expiry,priority:1"`
	ExpiresAt  time.Time `gorm:"not null;index:idx_reservation_status_expiry,priority:2"`
	ClosedAt   *time.Time
	Notes      string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (ReservationModel) TableName() string {
	return "reservations"
}

// ToDomain converts the persistence model to a domain Reservation
func (m *ReservationModel) ToDomain() *inventory.Reservation {
	return &inventory.Reservation{
		TenantEntity: m.ToTenantEntity(),
		ProductID:    m.ProductID,
		VariantID:    m.VariantID,
		CustomerID:   m.CustomerID,
		Quantity:     m.Quantity,
		Status:       inventory.ReservationStatus(m.Status),
		ExpiresAt:    m.ExpiresAt,
		ClosedAt:     m.ClosedAt,
		Notes:        m.Notes,
	}
}

// ReservationModelFromDomain creates a persistence model from a domain Reservation
func ReservationModelFromDomain(r *inventory.Reservation) *ReservationModel {
	m := &ReservationModel{
		ProductID:  r.ProductID,
		VariantID:  r.VariantID,
		CustomerID: r.CustomerID,
		Quantity:   r.Quantity,
		Status:     string(r.Status),
		ExpiresAt:  r.ExpiresAt,
		ClosedAt:   r.ClosedAt,
		Notes:      r.Notes,
	}
	m.FromDomainTenantEntity(r.TenantEntity)
	return m
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
