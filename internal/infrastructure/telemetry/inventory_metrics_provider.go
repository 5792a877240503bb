package telemetry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/coccinelle/backend/internal/domain/inventory"
)

// GormInventoryMetricsProvider implements InventoryMetricsProvider using GORM.
// It aggregates over the reservations, products and product_variants tables.
type GormInventoryMetricsProvider struct {
	db *gorm.DB
}

// NewGormInventoryMetricsProvider creates a new GormInventoryMetricsProvider.
func NewGormInventoryMetricsProvider(db *gorm.DB) *GormInventoryMetricsProvider {
	return &GormInventoryMetricsProvider{db: db}
}

// GetActiveReservedQuantity returns the units held by active reservations.
func (p *GormInventoryMetricsProvider) GetActiveReservedQuantity(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var total int64
	err := p.db.WithContext(ctx).
		Table("reservations").
		Select("COALESCE(SUM(quantity), 0)").
		Where("tenant_id = ? AND status = ?", tenantID, string(inventory.ReservationStatusActive)).
		Scan(&total).Error
	return total, err
}

// GetLowStockCount counts variants, and products without variants, whose
// stock is at or below the low stock threshold.
func (p *GormInventoryMetricsProvider) GetLowStockCount(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var variants int64
	err := p.db.WithContext(ctx).
		Table("product_variants").
		Where("tenant_id = ? AND stock_quantity <= ?", tenantID, inventory.LowStockThreshold).
		Count(&variants).Error
	if err != nil {
		return 0, err
	}

	var products int64
	err = p.db.WithContext(ctx).
		Table("products").
		Where("tenant_id = ? AND stock_quantity <= ?", tenantID, inventory.LowStockThreshold).
		Where("NOT EXISTS (SELECT 1 FROM product_variants v WHERE v.tenant_id = products.tenant_id AND v.product_id = products.id)").
		Count(&products).Error
	return variants + products, err
}

// GormTenantProvider implements TenantProvider using GORM.
type GormTenantProvider struct {
	db *gorm.DB
}

// NewGormTenantProvider creates a new GormTenantProvider.
func NewGormTenantProvider(db *gorm.DB) *GormTenantProvider {
	return &GormTenantProvider{db: db}
}

// GetActiveTenantIDs returns the tenants that own a catalog or an integration.
func (p *GormTenantProvider) GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := p.db.WithContext(ctx).
		Raw("SELECT tenant_id FROM products UNION SELECT tenant_id FROM crm_integrations WHERE is_active = ?", true).
		Scan(&ids).Error
	return ids, err
}
