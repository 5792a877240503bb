package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// effectiveStockSQL is the quantity a product reports: the sum of its
// variants when it has any, its own column otherwise.
const effectiveStockSQL = `COALESCE((SELECT SUM(v.stock_quantity) FROM product_variants v
	WHERE v.tenant_id = products.tenant_id AND v.product_id = products.id), products.stock_quantity)`

// GormProductRepository implements ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormProductRepository) WithTx(tx *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: tx}
}

// FindByID finds a product and its variants
func (r *GormProductRepository) FindByID(ctx context.Context, tenantID uuid.UUID, id string) (*inventory.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, inventory.ErrProductNotFound
		}
		return nil, err
	}
	products, err := r.attachVariants(ctx, tenantID, []models.ProductModel{model})
	if err != nil {
		return nil, err
	}
	return &products[0], nil
}

// FindBySKU finds a product by its own SKU or by the SKU of one of its variants
func (r *GormProductRepository) FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*inventory.Product, error) {
	var model models.ProductModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND sku = ?", tenantID, sku).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var variant models.VariantModel
		if verr := r.db.WithContext(ctx).
			Where("tenant_id = ? AND sku = ?", tenantID, sku).
			First(&variant).Error; verr != nil {
			if errors.Is(verr, gorm.ErrRecordNotFound) {
				return nil, inventory.ErrProductNotFound
			}
			return nil, verr
		}
		return r.FindByID(ctx, tenantID, variant.ProductID)
	}
	if err != nil {
		return nil, err
	}
	products, err := r.attachVariants(ctx, tenantID, []models.ProductModel{model})
	if err != nil {
		return nil, err
	}
	return &products[0], nil
}

// FindByIDs finds the products with the given ids; unknown ids are skipped
func (r *GormProductRepository) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []string) ([]inventory.Product, error) {
	if len(ids) == 0 {
		return []inventory.Product{}, nil
	}
	var productModels []models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Order("id ASC").
		Find(&productModels).Error; err != nil {
		return nil, err
	}
	return r.attachVariants(ctx, tenantID, productModels)
}

// Search matches name, description and SKU case-insensitively, then
// applies the category, tag and stock filters.
func (r *GormProductRepository) Search(ctx context.Context, tenantID uuid.UUID, query string, opts inventory.SearchOptions) ([]inventory.Product, error) {
	q := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if term := strings.ToLower(strings.TrimSpace(query)); term != "" {
		like := "%" + escapeLike(term) + "%"
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(sku) LIKE ? ESCAPE '\'`, like, like, like)
	}
	var productModels []models.ProductModel
	if err := q.Order("name ASC").Find(&productModels).Error; err != nil {
		return nil, err
	}
	products, err := r.attachVariants(ctx, tenantID, productModels)
	if err != nil {
		return nil, err
	}
	out := make([]inventory.Product, 0, len(products))
	for i := range products {
		if !opts.Accepts(&products[i]) {
			continue
		}
		out = append(out, products[i])
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// List returns one page of the catalog, optionally narrowed to a stock status
func (r *GormProductRepository) List(ctx context.Context, tenantID uuid.UUID, opts inventory.ListOptions) ([]inventory.Product, int64, error) {
	opts = opts.Normalize()
	byStatus := func(db *gorm.DB) *gorm.DB {
		db = db.Where("tenant_id = ?", tenantID)
		switch opts.StockStatus {
		case inventory.StockStatusOutOfStock:
			db = db.Where(effectiveStockSQL + " <= 0")
		case inventory.StockStatusLowStock:
			db = db.Where(effectiveStockSQL+" > 0 AND "+effectiveStockSQL+" <= ?", inventory.LowStockThreshold)
		case inventory.StockStatusInStock:
			db = db.Where(effectiveStockSQL+" > ?", inventory.LowStockThreshold)
		}
		return db
	}

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.ProductModel{}).Scopes(byStatus).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order, _ := productSortColumns.OrderBy(opts.SortBy, opts.SortOrder)

	var productModels []models.ProductModel
	if err := r.db.WithContext(ctx).Scopes(byStatus).
		Order(order).
		Offset((opts.Page - 1) * opts.PerPage).
		Limit(opts.PerPage).
		Find(&productModels).Error; err != nil {
		return nil, 0, err
	}
	products, err := r.attachVariants(ctx, tenantID, productModels)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// Save creates or updates a product and its variants
func (r *GormProductRepository) Save(ctx context.Context, product *inventory.Product) error {
	model, variants := models.ProductModelFromDomain(product)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(model).Error; err != nil {
			return err
		}
		for i := range variants {
			variants[i].Position = i
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&variants[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SetStock writes an absolute quantity
func (r *GormProductRepository) SetStock(ctx context.Context, tenantID uuid.UUID, ref inventory.StockItemRef, quantity int) error {
	result := r.stockTarget(ctx, tenantID, ref).Update("stock_quantity", quantity)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFoundFor(ref)
	}
	return nil
}

// AdjustStock adds delta in one conditional UPDATE and reads the row back
// inside the same scope, where the update holds its lock.
func (r *GormProductRepository) AdjustStock(ctx context.Context, tenantID uuid.UUID, ref inventory.StockItemRef, delta int) (int, error) {
	result := r.stockTarget(ctx, tenantID, ref).
		Where("stock_quantity + ? >= 0", delta).
		Update("stock_quantity", gorm.Expr("stock_quantity + ?", delta))
	if result.Error != nil {
		return 0, result.Error
	}
	quantity, err := r.stockQuantity(ctx, tenantID, ref)
	if err != nil {
		return 0, err
	}
	if result.RowsAffected == 0 {
		return 0, fmt.Errorf("%w: quantity would become %d", inventory.ErrInvalidStockUpdate, quantity+delta)
	}
	return quantity, nil
}

func (r *GormProductRepository) stockQuantity(ctx context.Context, tenantID uuid.UUID, ref inventory.StockItemRef) (int, error) {
	var quantities []int
	if err := r.stockTarget(ctx, tenantID, ref).Pluck("stock_quantity", &quantities).Error; err != nil {
		return 0, err
	}
	if len(quantities) == 0 {
		return 0, notFoundFor(ref)
	}
	return quantities[0], nil
}

// DecrementStock subtracts qty with a single conditional UPDATE, so two
// concurrent holds can never take the same unit.
func (r *GormProductRepository) DecrementStock(ctx context.Context, tenantID uuid.UUID, ref inventory.StockItemRef, qty int) error {
	if qty <= 0 {
		return inventory.ErrInvalidQuantity
	}
	result := r.stockTarget(ctx, tenantID, ref).
		Where("stock_quantity >= ?", qty).
		Update("stock_quantity", gorm.Expr("stock_quantity - ?", qty))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return inventory.ErrInsufficientStock
	}
	return nil
}

// IncrementStock adds qty back
func (r *GormProductRepository) IncrementStock(ctx context.Context, tenantID uuid.UUID, ref inventory.StockItemRef, qty int) error {
	if qty <= 0 {
		return inventory.ErrInvalidQuantity
	}
	result := r.stockTarget(ctx, tenantID, ref).
		Update("stock_quantity", gorm.Expr("stock_quantity + ?", qty))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFoundFor(ref)
	}
	return nil
}

func (r *GormProductRepository) stockTarget(ctx context.Context, tenantID uuid.UUID, ref inventory.StockItemRef) *gorm.DB {
	if ref.VariantID != "" {
		return r.db.WithContext(ctx).Model(&models.VariantModel{}).
			Where("tenant_id = ? AND product_id = ? AND id = ?", tenantID, ref.ProductID, ref.VariantID)
	}
	return r.db.WithContext(ctx).Model(&models.ProductModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, ref.ProductID)
}

func (r *GormProductRepository) attachVariants(ctx context.Context, tenantID uuid.UUID, productModels []models.ProductModel) ([]inventory.Product, error) {
	products := make([]inventory.Product, 0, len(productModels))
	if len(productModels) == 0 {
		return products, nil
	}
	ids := make([]string, len(productModels))
	for i := range productModels {
		ids[i] = productModels[i].ID
	}
	var variantModels []models.VariantModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id IN ?", tenantID, ids).
		Order("position ASC, id ASC").
		Find(&variantModels).Error; err != nil {
		return nil, err
	}
	byProduct := make(map[string][]models.VariantModel, len(productModels))
	for _, v := range variantModels {
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}
	for i := range productModels {
		products = append(products, *productModels[i].ToDomain(byProduct[productModels[i].ID]))
	}
	return products, nil
}

func notFoundFor(ref inventory.StockItemRef) error {
	if ref.VariantID != "" {
		return inventory.ErrVariantNotFound
	}
	return inventory.ErrProductNotFound
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Ensure GormProductRepository implements ProductRepository
var _ inventory.ProductRepository = (*GormProductRepository)(nil)
