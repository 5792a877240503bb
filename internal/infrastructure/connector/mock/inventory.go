package mock

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/coccinelle/backend/internal/domain/integration"
	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
)

// Inventory implements integration.InventorySystem over a Store.
// Lapsed holds are expired, and their stock restored, at the start of
// every call.
type Inventory struct {
	store *Store
}

// Compile-time interface check
var _ integration.InventorySystem = (*Inventory)(nil)

// NewInventory creates the inventory capability of a store
func NewInventory(store *Store) *Inventory {
	return &Inventory{store: store}
}

// GetProduct returns a product by id
func (i *Inventory) GetProduct(_ context.Context, productID string) (*inventory.Product, error) {
	s := i.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLapsedLocked()

	p, ok := s.products[productID]
	if !ok {
		return nil, inventory.ErrProductNotFound
	}
	return cloneProduct(p), nil
}

// GetProductVariant returns one variant of a product
func (i *Inventory) GetProductVariant(ctx context.Context, productID, variantID string) (*inventory.Variant, error) {
	p, err := i.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return p.FindVariant(variantID)
}

// GetProducts returns the products that exist among productIDs
func (i *Inventory) GetProducts(_ context.Context, productIDs []string) ([]inventory.Product, error) {
	s := i.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLapsedLocked()

	products := make([]inventory.Product, 0, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok {
			products = append(products, *cloneProduct(p))
		}
	}
	return products, nil
}

// SearchProducts matches name, description and SKU ignoring case and accents
func (i *Inventory) SearchProducts(_ context.Context, query string, opts inventory.SearchOptions) ([]inventory.Product, error) {
	s := i.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLapsedLocked()

	folded := fold(query)
	results := []inventory.Product{}
	for _, id := range s.productOrder {
		p := s.products[id]
		if !p.Matches(folded, fold) || !opts.Accepts(p) {
			continue
		}
		results = append(results, *cloneProduct(p))
		if opts.Limit > 0 && len(results) == opts.Limit {
			break
		}
	}
	return results, nil
}

// ListProducts pages through the catalog in seed order
func (i *Inventory) ListProducts(_ context.Context, opts inventory.ListOptions) (shared.Paginated[inventory.Product], error) {
	s := i.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLapsedLocked()

	opts = opts.Normalize()
	matched := make([]inventory.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		p := s.products[id]
		if opts.StockStatus != "" && p.StockStatus() != opts.StockStatus {
			continue
		}
		matched = append(matched, *cloneProduct(p))
	}
	return paginate(matched, opts.Page, opts.PerPage), nil
}

// CheckAvailability reports stock for a product or one of its variants
func (i *Inventory) CheckAvailability(_ context.Context, productID, variantID string) (inventory.StockInfo, error) {
	s := i.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLapsedLocked()

	p, ok := s.products[productID]
	if !ok {
		return inventory.StockInfo{}, inventory.ErrProductNotFound
	}
	return p.Availability(variantID, s.location)
}

// CheckAvailabilityBySku looks the SKU up on products, then variants
func (i *Inventory) CheckAvailabilityBySku(_ context.Context, sku string) (inventory.StockInfo, error) {
	s := i.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLapsedLocked()

	for _, id := range s.productOrder {
		p := s.products[id]
		if strings.EqualFold(p.SKU, sku) {
			return p.Availability("", s.location)
		}
		for _, v := range p.Variants {
			if strings.EqualFold(v.SKU, sku) {
				return p.Availability(v.ID, s.location)
			}
		}
	}
	return inventory.StockInfo{}, inventory.ErrProductNotFound
}

// CheckBulkAvailability checks every item and fails on the first error
func (i *Inventory) CheckBulkAvailability(ctx context.Context, items []inventory.StockItemRef) ([]inventory.StockInfo, error) {
	infos := make([]inventory.StockInfo, 0, len(items))
	for _, item := range items {
		info, err := i.CheckAvailability(ctx, item.ProductID, item.VariantID)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// UpdateStock sets or adjusts a quantity
func (i *Inventory) UpdateStock(_ context.Context, update inventory.StockUpdate) (inventory.StockInfo, error) {
	s := i.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLapsedLocked()

	qty, err := s.stockLocked(update.ProductID, update.VariantID)
	if err != nil {
		return inventory.StockInfo{}, err
	}
	next, err := update.Apply(*qty)
	if err != nil {
		return inventory.StockInfo{}, err
	}
	*qty = next
	s.products[update.ProductID].UpdatedAt = s.now()
	return inventory.NewStockInfo(update.ProductID, update.VariantID, next, s.location), nil
}

// ReserveProduct holds stock for a customer
func (i *Inventory) ReserveProduct(_ context.Context, req inventory.ReserveRequest) (*inventory.Reservation, error) {
	s := i.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLapsedLocked()

	p, ok := s.products[req.ProductID]
	if !ok {
		return nil, inventory.ErrProductNotFound
	}
	if p.HasVariants() && req.VariantID == "" {
		return nil, inventory.ErrVariantRequired
	}
	qty, err := s.stockLocked(req.ProductID, req.VariantID)
	if err != nil {
		return nil, err
	}
	r, err := inventory.NewReservation(s.tenantID, req.Ref(), req.CustomerID, req.Quantity, req.Duration(), req.Notes)
	if err != nil {
		return nil, err
	}
	if *qty < req.Quantity {
		return nil, inventory.ErrInsufficientStock
	}
	now := s.now()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.ExpiresAt = now.Add(req.Duration())
	r.ClearDomainEvents()

	*qty -= req.Quantity
	s.reservations[r.ID] = r
	out := *r
	return &out, nil
}

// CancelReservation releases a hold. Cancelling twice is a no-op.
func (i *Inventory) CancelReservation(_ context.Context, reservationID uuid.UUID) error {
	s := i.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLapsedLocked()

	r, ok := s.reservations[reservationID]
	if !ok {
		return inventory.ErrReservationNotFound
	}
	changed, err := r.Close(inventory.ReservationStatusCancelled, s.now())
	if err != nil {
		return err
	}
	r.ClearDomainEvents()
	if changed {
		s.restoreLocked(r)
	}
	return nil
}

// ExtendReservation pushes an active hold's expiry forward
func (i *Inventory) ExtendReservation(_ context.Context, reservationID uuid.UUID, additionalMinutes int) (*inventory.Reservation, error) {
	s := i.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLapsedLocked()

	r, ok := s.reservations[reservationID]
	if !ok {
		return nil, inventory.ErrReservationNotFound
	}
	if err := r.Extend(time.Duration(additionalMinutes)*time.Minute, s.now()); err != nil {
		return nil, err
	}
	r.ClearDomainEvents()
	out := *r
	return &out, nil
}

// GetCustomerReservations returns the customer's active holds, soonest
// expiry first
func (i *Inventory) GetCustomerReservations(_ context.Context, customerID string) ([]inventory.Reservation, error) {
	s := i.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLapsedLocked()

	now := s.now()
	out := []inventory.Reservation{}
	for _, r := range s.reservations {
		if r.CustomerID == customerID && r.IsActiveAt(now) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ExpiresAt.Before(out[b].ExpiresAt) })
	return out, nil
}

// CheckHealth always reports connected
func (i *Inventory) CheckHealth(context.Context) integration.Health {
	return integration.Healthy(integration.SystemMock, i.store.counts())
}

// TestConnection always succeeds
func (i *Inventory) TestConnection(context.Context) error { return nil }

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// stockLocked returns a pointer to the quantity a ref addresses
func (s *Store) stockLocked(productID, variantID string) (*int, error) {
	p, ok := s.products[productID]
	if !ok {
		return nil, inventory.ErrProductNotFound
	}
	if variantID == "" {
		if p.HasVariants() {
			return nil, inventory.ErrVariantRequired
		}
		return &p.StockQuantity, nil
	}
	v, err := p.FindVariant(variantID)
	if err != nil {
		return nil, err
	}
	return &v.StockQuantity, nil
}

func (s *Store) restoreLocked(r *inventory.Reservation) {
	if qty, err := s.stockLocked(r.ProductID, r.VariantID); err == nil {
		*qty += r.Quantity
	}
}

// expireLapsedLocked closes every lapsed hold exactly once
func (s *Store) expireLapsedLocked() {
	now := s.now()
	for _, r := range s.reservations {
		if !r.IsLapsed(now) {
			continue
		}
		if changed, err := r.Close(inventory.ReservationStatusExpired, now); err == nil && changed {
			s.restoreLocked(r)
		}
		r.ClearDomainEvents()
	}
}

func cloneProduct(p *inventory.Product) *inventory.Product {
	out := *p
	out.Variants = append([]inventory.Variant(nil), p.Variants...)
	out.Categories = append([]string(nil), p.Categories...)
	out.Tags = append([]string(nil), p.Tags...)
	return &out
}

func paginate[T any](items []T, page, perPage int) shared.Paginated[T] {
	total := len(items)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return shared.NewPaginated(items[start:end], int64(total), page, perPage)
}
