package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/coccinelle/backend/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultLocation is reported on StockInfo for database-backed stock
const DefaultLocation = "Main Store"

// InventoryService is the database-backed catalog, stock and
// reservation engine. All methods are tenant-scoped; the service itself
// holds no per-tenant state.
type InventoryService struct {
	products     inventory.ProductRepository
	reservations inventory.ReservationRepository
	txScope      TransactionScope
	eventBus     shared.EventPublisher
	validate     *validator.Validate
	logger       *zap.Logger
	location     string
	now          func() time.Time
}

// Option configures an InventoryService
type Option func(*InventoryService)

// WithLocation sets the location reported on StockInfo
func WithLocation(location string) Option {
	return func(s *InventoryService) {
		s.location = location
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *InventoryService) {
		s.now = now
	}
}

// NewInventoryService creates a new InventoryService
func NewInventoryService(
	products inventory.ProductRepository,
	reservations inventory.ReservationRepository,
	txScope TransactionScope,
	eventBus shared.EventPublisher,
	logger *zap.Logger,
	opts ...Option,
) *InventoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &InventoryService{
		products:     products,
		reservations: reservations,
		txScope:      txScope,
		eventBus:     eventBus,
		validate:     validator.New(),
		logger:       logger,
		location:     DefaultLocation,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetProduct returns a product with its variants
func (s *InventoryService) GetProduct(ctx context.Context, tenantID uuid.UUID, productID string) (*inventory.Product, error) {
	return s.products.FindByID(ctx, tenantID, productID)
}

// GetProductVariant returns one variant of a product
func (s *InventoryService) GetProductVariant(ctx context.Context, tenantID uuid.UUID, productID, variantID string) (*inventory.Variant, error) {
	product, err := s.products.FindByID(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	return product.FindVariant(variantID)
}

// GetProducts returns the known products among ids
func (s *InventoryService) GetProducts(ctx context.Context, tenantID uuid.UUID, productIDs []string) ([]inventory.Product, error) {
	return s.products.FindByIDs(ctx, tenantID, productIDs)
}

// SearchProducts searches name, description and SKU
func (s *InventoryService) SearchProducts(ctx context.Context, tenantID uuid.UUID, query string, opts inventory.SearchOptions) ([]inventory.Product, error) {
	return s.products.Search(ctx, tenantID, query, opts)
}

// ListProducts returns one page of the catalog
func (s *InventoryService) ListProducts(ctx context.Context, tenantID uuid.UUID, opts inventory.ListOptions) (shared.Paginated[inventory.Product], error) {
	opts = opts.Normalize()
	products, total, err := s.products.List(ctx, tenantID, opts)
	if err != nil {
		return shared.Paginated[inventory.Product]{}, err
	}
	return shared.NewPaginated(products, total, opts.Page, opts.PerPage), nil
}

// CheckAvailability reports stock for a product or one of its variants
func (s *InventoryService) CheckAvailability(ctx context.Context, tenantID uuid.UUID, productID, variantID string) (inventory.StockInfo, error) {
	product, err := s.products.FindByID(ctx, tenantID, productID)
	if err != nil {
		return inventory.StockInfo{}, err
	}
	return product.Availability(variantID, s.location)
}

// CheckAvailabilityBySku reports stock for the product or variant carrying sku
func (s *InventoryService) CheckAvailabilityBySku(ctx context.Context, tenantID uuid.UUID, sku string) (inventory.StockInfo, error) {
	product, err := s.products.FindBySKU(ctx, tenantID, sku)
	if err != nil {
		return inventory.StockInfo{}, err
	}
	for i := range product.Variants {
		if product.Variants[i].SKU == sku {
			return product.Availability(product.Variants[i].ID, s.location)
		}
	}
	return product.Availability("", s.location)
}

// CheckBulkAvailability checks every item; the first failure aborts the batch
func (s *InventoryService) CheckBulkAvailability(ctx context.Context, tenantID uuid.UUID, items []inventory.StockItemRef) ([]inventory.StockInfo, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*inventory.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	infos := make([]inventory.StockInfo, 0, len(items))
	for _, item := range items {
		product, ok := byID[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", inventory.ErrProductNotFound, item.ProductID)
		}
		info, err := product.Availability(item.VariantID, s.location)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// UpdateStock sets or adjusts the quantity of a product or variant
func (s *InventoryService) UpdateStock(ctx context.Context, tenantID uuid.UUID, update inventory.StockUpdate) (inventory.StockInfo, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "inventory", "update_stock",
		telemetry.WithAttribute(telemetry.SpanAttrTenantID, tenantID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrProductID, update.ProductID),
	)
	defer span.End()

	if err := s.validateStruct(update); err != nil {
		return inventory.StockInfo{}, err
	}

	var info inventory.StockInfo
	var event shared.DomainEvent
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		product, err := repos.Products().FindByID(ctx, tenantID, update.ProductID)
		if err != nil {
			return err
		}
		ref := inventory.StockItemRef{ProductID: product.ID}
		current := product.StockQuantity
		if product.HasVariants() {
			if update.VariantID == "" {
				return inventory.ErrVariantRequired
			}
			variant, err := product.FindVariant(update.VariantID)
			if err != nil {
				return err
			}
			ref.VariantID = variant.ID
			current = variant.StockQuantity
		}
		var next int
		if update.Mode == inventory.StockModeAdjust {
			next, err = repos.Products().AdjustStock(ctx, tenantID, ref, update.Quantity)
			if err != nil {
				return err
			}
		} else {
			next, err = update.Apply(current)
			if err != nil {
				return err
			}
			if err := repos.Products().SetStock(ctx, tenantID, ref, next); err != nil {
				return err
			}
		}
		info = inventory.NewStockInfo(ref.ProductID, ref.VariantID, next, s.location)
		event = inventory.NewStockUpdatedEvent(tenantID, update, next)
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return inventory.StockInfo{}, err
	}

	s.publish(ctx, event)
	telemetry.SetOK(span)
	return info, nil
}

func (s *InventoryService) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
		return shared.NewValidationError("invalid input: %s", strings.Join(fields, ", "))
	}
	return shared.NewValidationError("invalid input: %v", err)
}

func (s *InventoryService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.eventBus == nil || len(events) == 0 {
		return
	}
	if err := s.eventBus.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish inventory events",
			zap.Int("count", len(events)),
			zap.Error(err),
		)
	}
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
