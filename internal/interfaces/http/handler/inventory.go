package handler

import (
	"context"
	"strconv"
	"strings"

	inventoryapp "github.com/coccinelle/backend/internal/application/inventory"
	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// InventoryReader is the catalog and stock surface used by InventoryHandler
type InventoryReader interface {
	GetProduct(ctx context.Context, tenantID uuid.UUID, productID string) (*inventory.Product, error)
	ListProducts(ctx context.Context, tenantID uuid.UUID, opts inventory.ListOptions) (shared.Paginated[inventory.Product], error)
	SearchProducts(ctx context.Context, tenantID uuid.UUID, query string, opts inventory.SearchOptions) ([]inventory.Product, error)
	CheckAvailability(ctx context.Context, tenantID uuid.UUID, productID, variantID string) (inventory.StockInfo, error)
	CheckAvailabilityBySku(ctx context.Context, tenantID uuid.UUID, sku string) (inventory.StockInfo, error)
	CheckBulkAvailability(ctx context.Context, tenantID uuid.UUID, items []inventory.StockItemRef) ([]inventory.StockInfo, error)
	UpdateStock(ctx context.Context, tenantID uuid.UUID, update inventory.StockUpdate) (inventory.StockInfo, error)
}

// InventoryHandler handles catalog and availability endpoints
type InventoryHandler struct {
	BaseHandler
	inventory InventoryReader
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(inventory InventoryReader) *InventoryHandler {
	return &InventoryHandler{inventory: inventory}
}

// BulkAvailabilityRequest is the body of a bulk availability check
type BulkAvailabilityRequest struct {
	Items []inventory.StockItemRef `json:"items" binding:"required,min=1,max=100,dive"`
}

// UpdateStockRequest sets or adjusts the stock of a product or variant
type UpdateStockRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	Mode      string `json:"mode" binding:"omitempty,oneof=set adjust"`
	Reason    string `json:"reason" binding:"max=255"`
}

// ListProducts lists or searches the tenant catalog
//
// GET /api/v1/inventory/products?q=&category=&tag=&stock_status=&sort_by=&sort_order=&page=&page_size=
func (h *InventoryHandler) ListProducts(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.TenantRequired(c)
		return
	}
	ctx := c.Request.Context()

	if q := strings.TrimSpace(c.Query("q")); q != "" {
		opts := inventory.SearchOptions{
			Category:          c.Query("category"),
			Tags:              c.QueryArray("tag"),
			IncludeOutOfStock: c.Query("include_out_of_stock") == "true",
			Limit:             queryInt(c, "limit", 0),
		}
		products, err := h.inventory.SearchProducts(ctx, tenantID, q, opts)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		h.Success(c, inventoryapp.ToProductResponses(products))
		return
	}

	opts := inventory.ListOptions{
		Page:        queryInt(c, "page", 1),
		PerPage:     queryInt(c, "page_size", 20),
		StockStatus: inventory.StockStatus(c.Query("stock_status")),
		SortBy:      c.Query("sort_by"),
		SortOrder:   c.Query("sort_order"),
	}
	page, err := h.inventory.ListProducts(ctx, tenantID, opts)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, inventoryapp.ToProductResponses(page.Items), page.Total, page.Page, page.PageSize)
}

// GetProduct returns one product with its variants
//
// GET /api/v1/inventory/products/:id
func (h *InventoryHandler) GetProduct(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.TenantRequired(c)
		return
	}
	product, err := h.inventory.GetProduct(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, inventoryapp.ToProductResponse(product))
}

// CheckAvailability reports live stock for a product or one of its variants
//
// GET /api/v1/inventory/products/:id/availability?variant_id=
func (h *InventoryHandler) CheckAvailability(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.TenantRequired(c)
		return
	}
	info, err := h.inventory.CheckAvailability(c.Request.Context(), tenantID, c.Param("id"), c.Query("variant_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, info)
}

// CheckAvailabilityBySku reports live stock for the item carrying a SKU
//
// GET /api/v1/inventory/sku/:sku/availability
func (h *InventoryHandler) CheckAvailabilityBySku(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.TenantRequired(c)
		return
	}
	info, err := h.inventory.CheckAvailabilityBySku(c.Request.Context(), tenantID, c.Param("sku"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, info)
}

// CheckBulkAvailability checks several items at once
//
// POST /api/v1/inventory/availability
func (h *InventoryHandler) CheckBulkAvailability(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.TenantRequired(c)
		return
	}
	var req BulkAvailabilityRequest
	if !h.BindJSON(c, &req) {
		return
	}
	infos, err := h.inventory.CheckBulkAvailability(c.Request.Context(), tenantID, req.Items)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, infos)
}

// UpdateStock sets or adjusts stock
//
// POST /api/v1/inventory/stock
func (h *InventoryHandler) UpdateStock(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.TenantRequired(c)
		return
	}
	var req UpdateStockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	info, err := h.inventory.UpdateStock(c.Request.Context(), tenantID, inventory.StockUpdate{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
		Mode:      inventory.StockMode(req.Mode),
		Reason:    req.Reason,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, info)
}

// queryInt reads a positive integer query parameter
func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}
