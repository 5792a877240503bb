package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/coccinelle/backend/internal/domain/inventory"
	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProducts(t *testing.T, repo *GormProductRepository, tenantID uuid.UUID) {
	t.Helper()
	now := time.Now()
	products := []inventory.Product{
		{
			ID: "prod_001", TenantID: tenantID, Name: "Robe Fleurie", Description: "Robe d'été légère",
			SKU: "RF-2847", Price: shared.NewMoney(89.90, "EUR"),
			Categories: []string{"robes"}, Tags: []string{"été"},
			Variants: []inventory.Variant{
				{ID: "var_001_36", ProductID: "prod_001", Name: "T36", SKU: "RF-2847-36", StockQuantity: 1},
				{ID: "var_001_38", ProductID: "prod_001", Name: "T38", SKU: "RF-2847-38", StockQuantity: 2},
			},
			CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "prod_002", TenantID: tenantID, Name: "Blouse 100%_lin", SKU: "BL-445",
			Price: shared.NewMoney(49, "EUR"), StockQuantity: 0, Categories: []string{"hauts"},
			CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "prod_003", TenantID: tenantID, Name: "Pantalon", SKU: "PT-2847",
			Price: shared.NewMoney(69, "EUR"), StockQuantity: 12,
			CreatedAt: now, UpdatedAt: now,
		},
	}
	for i := range products {
		require.NoError(t, repo.Save(context.Background(), &products[i]))
	}
}

func TestGormProductRepository_FindByID(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormProductRepository(db)
	tenantID := uuid.New()
	seedProducts(t, repo, tenantID)
	ctx := context.Background()

	t.Run("loads variants in position order", func(t *testing.T) {
		p, err := repo.FindByID(ctx, tenantID, "prod_001")
		require.NoError(t, err)
		require.Len(t, p.Variants, 2)
		assert.Equal(t, "var_001_36", p.Variants[0].ID)
		assert.Equal(t, 3, p.TotalStock())
		assert.True(t, p.Price.Amount.Equal(shared.NewMoney(89.90, "EUR").Amount))
		assert.Equal(t, []string{"robes"}, p.Categories)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := repo.FindByID(ctx, tenantID, "prod_999")
		assert.ErrorIs(t, err, inventory.ErrProductNotFound)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("other tenants do not see the product", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New(), "prod_001")
		assert.ErrorIs(t, err, inventory.ErrProductNotFound)
	})
}

func TestGormProductRepository_FindBySKU(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormProductRepository(db)
	tenantID := uuid.New()
	seedProducts(t, repo, tenantID)
	ctx := context.Background()

	p, err := repo.FindBySKU(ctx, tenantID, "PT-2847")
	require.NoError(t, err)
	assert.Equal(t, "prod_003", p.ID)

	p, err = repo.FindBySKU(ctx, tenantID, "RF-2847-38")
	require.NoError(t, err)
	assert.Equal(t, "prod_001", p.ID)

	_, err = repo.FindBySKU(ctx, tenantID, "NOPE")
	assert.ErrorIs(t, err, inventory.ErrProductNotFound)
}

func TestGormProductRepository_Search(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormProductRepository(db)
	tenantID := uuid.New()
	seedProducts(t, repo, tenantID)
	ctx := context.Background()

	t.Run("matches sku case-insensitively", func(t *testing.T) {
		products, err := repo.Search(ctx, tenantID, "pt-2847", inventory.SearchOptions{})
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, "prod_003", products[0].ID)
	})

	t.Run("hides out of stock unless asked", func(t *testing.T) {
		products, err := repo.Search(ctx, tenantID, "blouse", inventory.SearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, products)

		products, err = repo.Search(ctx, tenantID, "blouse", inventory.SearchOptions{IncludeOutOfStock: true})
		require.NoError(t, err)
		assert.Len(t, products, 1)
	})

	t.Run("wildcards in the query are literal", func(t *testing.T) {
		products, err := repo.Search(ctx, tenantID, "100%_", inventory.SearchOptions{IncludeOutOfStock: true})
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, "prod_002", products[0].ID)

		products, err = repo.Search(ctx, tenantID, "%", inventory.SearchOptions{IncludeOutOfStock: true})
		require.NoError(t, err)
		assert.Len(t, products, 1)
	})

	t.Run("category filter and limit", func(t *testing.T) {
		products, err := repo.Search(ctx, tenantID, "", inventory.SearchOptions{Category: "robes", Limit: 1})
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, "prod_001", products[0].ID)
	})
}

func TestGormProductRepository_List(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormProductRepository(db)
	tenantID := uuid.New()
	seedProducts(t, repo, tenantID)
	ctx := context.Background()

	products, total, err := repo.List(ctx, tenantID, inventory.ListOptions{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, products, 2)

	products, total, err = repo.List(ctx, tenantID, inventory.ListOptions{StockStatus: inventory.StockStatusLowStock})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, products, 1)
	assert.Equal(t, "prod_001", products[0].ID)

	_, total, err = repo.List(ctx, tenantID, inventory.ListOptions{StockStatus: inventory.StockStatusOutOfStock})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, total, err = repo.List(ctx, tenantID, inventory.ListOptions{StockStatus: inventory.StockStatusInStock})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestGormProductRepository_ListSorted(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormProductRepository(db)
	tenantID := uuid.New()
	seedProducts(t, repo, tenantID)
	ctx := context.Background()

	ids := func(products []inventory.Product) []string {
		out := make([]string, len(products))
		for i, p := range products {
			out[i] = p.ID
		}
		return out
	}

	products, _, err := repo.List(ctx, tenantID, inventory.ListOptions{SortBy: "price_amount", SortOrder: "desc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"prod_001", "prod_003", "prod_002"}, ids(products))

	products, _, err = repo.List(ctx, tenantID, inventory.ListOptions{SortBy: "name", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []string{"prod_002", "prod_003", "prod_001"}, ids(products))

	products, _, err = repo.List(ctx, tenantID, inventory.ListOptions{SortBy: "name; DROP TABLE products"})
	require.NoError(t, err)
	assert.Equal(t, []string{"prod_003", "prod_002", "prod_001"}, ids(products))
}

func TestGormProductRepository_StockMutations(t *testing.T) {
	db := newTestDatabase(t)
	repo := NewGormProductRepository(db)
	tenantID := uuid.New()
	seedProducts(t, repo, tenantID)
	ctx := context.Background()
	variantRef := inventory.StockItemRef{ProductID: "prod_001", VariantID: "var_001_36"}

	t.Run("decrement takes the last unit once", func(t *testing.T) {
		require.NoError(t, repo.DecrementStock(ctx, tenantID, variantRef, 1))

		err := repo.DecrementStock(ctx, tenantID, variantRef, 1)
		assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
		assert.ErrorIs(t, err, shared.ErrInsufficientStock)

		p, err := repo.FindByID(ctx, tenantID, "prod_001")
		require.NoError(t, err)
		assert.Equal(t, 0, p.Variants[0].StockQuantity)
	})

	t.Run("increment restores", func(t *testing.T) {
		require.NoError(t, repo.IncrementStock(ctx, tenantID, variantRef, 1))
		p, err := repo.FindByID(ctx, tenantID, "prod_001")
		require.NoError(t, err)
		assert.Equal(t, 1, p.Variants[0].StockQuantity)
	})

	t.Run("set writes an absolute value", func(t *testing.T) {
		ref := inventory.StockItemRef{ProductID: "prod_003"}
		require.NoError(t, repo.SetStock(ctx, tenantID, ref, 4))
		p, err := repo.FindByID(ctx, tenantID, "prod_003")
		require.NoError(t, err)
		assert.Equal(t, 4, p.StockQuantity)
	})

	t.Run("adjust applies a delta to the current row", func(t *testing.T) {
		ref := inventory.StockItemRef{ProductID: "prod_003"}
		stale, err := repo.FindByID(ctx, tenantID, "prod_003")
		require.NoError(t, err)
		require.NoError(t, repo.DecrementStock(ctx, tenantID, ref, 1))

		n, err := repo.AdjustStock(ctx, tenantID, ref, 1)
		require.NoError(t, err)
		assert.Equal(t, stale.StockQuantity, n)

		p, err := repo.FindByID(ctx, tenantID, "prod_003")
		require.NoError(t, err)
		assert.Equal(t, stale.StockQuantity, p.StockQuantity)
	})

	t.Run("adjust never goes below zero", func(t *testing.T) {
		_, err := repo.AdjustStock(ctx, tenantID, variantRef, -50)
		assert.ErrorIs(t, err, inventory.ErrInvalidStockUpdate)
		assert.ErrorIs(t, err, shared.ErrValidation)

		p, err := repo.FindByID(ctx, tenantID, "prod_001")
		require.NoError(t, err)
		assert.Equal(t, 1, p.Variants[0].StockQuantity)

		_, err = repo.AdjustStock(ctx, tenantID, inventory.StockItemRef{ProductID: "prod_001", VariantID: "nope"}, 1)
		assert.ErrorIs(t, err, inventory.ErrVariantNotFound)
	})

	t.Run("unknown targets", func(t *testing.T) {
		err := repo.SetStock(ctx, tenantID, inventory.StockItemRef{ProductID: "prod_001", VariantID: "nope"}, 3)
		assert.ErrorIs(t, err, inventory.ErrVariantNotFound)
		err = repo.IncrementStock(ctx, tenantID, inventory.StockItemRef{ProductID: "nope"}, 1)
		assert.ErrorIs(t, err, inventory.ErrProductNotFound)
	})

	t.Run("non-positive quantities are rejected", func(t *testing.T) {
		assert.ErrorIs(t, repo.DecrementStock(ctx, tenantID, variantRef, 0), inventory.ErrInvalidQuantity)
		assert.ErrorIs(t, repo.IncrementStock(ctx, tenantID, variantRef, -1), inventory.ErrInvalidQuantity)
	})
}

func TestGormProductRepository_DecrementStock_SQL(t *testing.T) {
	db, mock := newMockDatabase(t)
	defer db.Close()
	repo := NewGormProductRepository(db.DB)
	tenantID := uuid.New()

	t.Run("guards the update with the requested quantity", func(t *testing.T) {
		mock.ExpectExec(`UPDATE "products" SET "stock_quantity"=stock_quantity - \$1,"updated_at"=\$2 WHERE \(tenant_id = \$3 AND id = \$4\) AND stock_quantity >= \$5`).
			WithArgs(2, sqlmock.AnyArg(), tenantID, "prod_003", 2).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.DecrementStock(context.Background(), tenantID, inventory.StockItemRef{ProductID: "prod_003"}, 2)
		require.NoError(t, err)
	})

	t.Run("zero rows affected is insufficient stock", func(t *testing.T) {
		mock.ExpectExec(`UPDATE "product_variants" SET "stock_quantity"=stock_quantity - \$1`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.DecrementStock(context.Background(), tenantID, inventory.StockItemRef{ProductID: "prod_001", VariantID: "var_001_36"}, 1)
		assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
