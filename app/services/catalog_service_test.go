package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/app/repositories"
	"github.com/shashiranjanraj/kashvi-shop/app/services"
	"github.com/shashiranjanraj/kashvi-shop/pkg/storage"
	"github.com/shashiranjanraj/kashvi-shop/pkg/testkit"
)

func newCatalog(t *testing.T) (*services.CatalogService, *gorm.DB, storage.Disk) {
	t.Helper()
	db := testkit.DB(t)
	disk := storage.NewLocalDisk(t.TempDir(), "http://cdn.test/storage")
	return services.NewCatalogService(db, disk), db, disk
}

func TestGenerateSKU(t *testing.T) {
	sku := services.GenerateSKU()
	assert.Regexp(t, `^SKU-[0-9A-F]{8}$`, sku)
	assert.NotEqual(t, sku, services.GenerateSKU())
}

func TestCreateProduct(t *testing.T) {
	svc, _, _ := newCatalog(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, staff, services.ProductInput{
		Name:  "Galaxy S24",
		Price: price("799.00"),
		Stock: 40,
		Variants: []services.VariantInput{
			{ColorName: "Black", Storage: "256GB", Stock: 4},
			{ColorName: "Black", Storage: "512GB", Stock: 2, Price: pricePtr("899.00")},
		},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.SKU, "SKU-"))
	assert.True(t, p.Active)
	assert.Zero(t, p.Stock, "stock moves to the variants")
	require.Len(t, p.Variants, 2)
	assert.Equal(t, 6, p.EffectiveStock())

	_, err = svc.CreateProduct(ctx, staff, services.ProductInput{SKU: strings.ToLower(p.SKU), Name: "Copy", Price: price("1")})
	assert.ErrorIs(t, err, services.ErrDuplicateSKU)

	_, err = svc.CreateProduct(ctx, staff, services.ProductInput{
		Name:  "Twins",
		Price: price("1"),
		Variants: []services.VariantInput{
			{ColorName: "Red"},
			{ColorName: " red "},
		},
	})
	assert.ErrorIs(t, err, services.ErrDuplicateVariant)

	_, err = svc.CreateProduct(ctx, staff, services.ProductInput{Name: "Bad", Price: price("-1")})
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
	_, err = svc.CreateProduct(ctx, staff, services.ProductInput{Price: price("1")})
	assert.ErrorIs(t, err, services.ErrInvalidRequest)

	_, err = svc.CreateProduct(ctx, alice, services.ProductInput{Name: "Nope", Price: price("1")})
	assert.ErrorIs(t, err, services.ErrForbidden)
}

func TestAddVariant(t *testing.T) {
	svc, db, _ := newCatalog(t)
	ctx := context.Background()

	cable := seedProduct(t, db, "USB-C Cable", "12.50", 3)
	_, err := svc.AddVariant(ctx, staff, cable.ID, services.VariantInput{ColorName: "White", Stock: 1})
	assert.ErrorIs(t, err, services.ErrInvalidRequest)

	phone := seedProduct(t, db, "Galaxy S24", "799.00", 0,
		models.Variant{ColorName: "Black", Storage: "256GB", Stock: 4},
	)
	_, err = svc.AddVariant(ctx, staff, phone.ID, services.VariantInput{ColorName: "BLACK", Storage: "256gb"})
	assert.ErrorIs(t, err, services.ErrDuplicateVariant)

	v, err := svc.AddVariant(ctx, staff, phone.ID, services.VariantInput{ColorName: "Cream", Storage: "256GB", Stock: 7})
	require.NoError(t, err)
	assert.NotZero(t, v.ID)
	assert.Equal(t, "Cream - 256GB", v.Label())

	_, err = svc.AddVariant(ctx, staff, 9999, services.VariantInput{ColorName: "Cream"})
	assert.ErrorIs(t, err, services.ErrProductNotFound)
	_, err = svc.AddVariant(ctx, alice, phone.ID, services.VariantInput{ColorName: "Gold"})
	assert.ErrorIs(t, err, services.ErrForbidden)
}

func TestRestock(t *testing.T) {
	svc, db, _ := newCatalog(t)
	ctx := context.Background()

	cable := seedProduct(t, db, "USB-C Cable", "12.50", 3)
	level, err := svc.Restock(ctx, staff, cable.ID, nil, 5)
	require.NoError(t, err)
	assert.Equal(t, 8, level.Remaining)
	assert.Equal(t, services.KindProduct, level.Kind)
	assert.Equal(t, 8, productStock(t, db, cable.ID))

	_, err = svc.Restock(ctx, staff, cable.ID, nil, -9)
	var short *services.InsufficientStockError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, 8, short.Available)
	assert.Equal(t, 8, productStock(t, db, cable.ID))

	level, err = svc.Restock(ctx, staff, cable.ID, nil, -8)
	require.NoError(t, err)
	assert.Zero(t, level.Remaining)

	phone := seedProduct(t, db, "Galaxy S24", "799.00", 0,
		models.Variant{ColorName: "Black", Storage: "256GB", Stock: 4},
	)
	vid := phone.Variants[0].ID
	_, err = svc.Restock(ctx, staff, phone.ID, nil, 1)
	assert.ErrorIs(t, err, services.ErrInvalidRequest)

	level, err = svc.Restock(ctx, staff, phone.ID, &vid, 6)
	require.NoError(t, err)
	assert.Equal(t, services.KindVariant, level.Kind)
	assert.Equal(t, "Black - 256GB", level.Label)
	assert.Equal(t, 10, variantStock(t, db, vid))

	other := vid + 100
	_, err = svc.Restock(ctx, staff, phone.ID, &other, 1)
	assert.ErrorIs(t, err, services.ErrVariantNotFound)
	_, err = svc.Restock(ctx, staff, phone.ID, &vid, 0)
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
	_, err = svc.Restock(ctx, alice, phone.ID, &vid, 1)
	assert.ErrorIs(t, err, services.ErrForbidden)
}

func TestLowStock(t *testing.T) {
	svc, db, _ := newCatalog(t)
	ctx := context.Background()

	seedProduct(t, db, "USB-C Cable", "12.50", 250)
	clear := seedProduct(t, db, "Clear Case", "19.00", 3)
	phone := seedProduct(t, db, "Galaxy S24", "799.00", 0,
		models.Variant{ColorName: "Black", Storage: "256GB", Stock: 40},
		models.Variant{ColorName: "Black", Storage: "512GB", Stock: 0},
	)
	gone := seedProduct(t, db, "Old Charger", "5.00", 1)
	require.NoError(t, svc.Deactivate(ctx, staff, gone.ID))

	levels, err := svc.LowStock(ctx, staff, 5)
	require.NoError(t, err)
	require.Len(t, levels, 2)

	assert.Equal(t, clear.ID, levels[0].ProductID)
	assert.Equal(t, services.KindProduct, levels[0].Kind)
	assert.Equal(t, 3, levels[0].Remaining)

	assert.Equal(t, phone.ID, levels[1].ProductID)
	require.NotNil(t, levels[1].VariantID)
	assert.Equal(t, phone.Variants[1].ID, *levels[1].VariantID)
	assert.Equal(t, "Black - 512GB", levels[1].Label)
	assert.Zero(t, levels[1].Remaining)

	levels, err = svc.LowStock(ctx, staff, 0)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, phone.ID, levels[0].ProductID)

	_, err = svc.LowStock(ctx, staff, -1)
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
	_, err = svc.LowStock(ctx, alice, 5)
	assert.ErrorIs(t, err, services.ErrForbidden)
}

func TestDeactivateHidesProductFromCustomers(t *testing.T) {
	svc, db, _ := newCatalog(t)
	ctx := context.Background()
	p := seedProduct(t, db, "Old Charger", "5.00", 5)
	seedProduct(t, db, "New Charger", "9.00", 5)

	got, err := svc.GetProduct(ctx, alice, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Old Charger", got.Name)

	require.NoError(t, svc.Deactivate(ctx, staff, p.ID))
	assert.ErrorIs(t, svc.Deactivate(ctx, alice, p.ID), services.ErrForbidden)
	assert.ErrorIs(t, svc.Deactivate(ctx, staff, 9999), services.ErrProductNotFound)

	_, err = svc.GetProduct(ctx, alice, p.ID)
	assert.ErrorIs(t, err, services.ErrProductNotFound)
	got, err = svc.GetProduct(ctx, staff, p.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	list, page, err := svc.ListProducts(ctx, alice, repositories.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "New Charger", list[0].Name)
	assert.EqualValues(t, 1, page.Total)

	list, _, err = svc.ListProducts(ctx, staff, repositories.ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestListProductsSearch(t *testing.T) {
	svc, db, _ := newCatalog(t)
	ctx := context.Background()
	seedProduct(t, db, "Galaxy S24", "799.00", 1)
	seedProduct(t, db, "Pixel 8", "699.00", 1)
	seedProduct(t, db, "Galaxy Buds", "99.00", 1)

	list, page, err := svc.ListProducts(ctx, alice, repositories.ProductFilter{Search: "galaxy", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.EqualValues(t, 2, page.Total)
	assert.Equal(t, 2, page.LastPage)

	_, err = svc.GetProduct(ctx, alice, 9999)
	assert.ErrorIs(t, err, services.ErrProductNotFound)
}

func TestUploadImage(t *testing.T) {
	svc, db, disk := newCatalog(t)
	ctx := context.Background()
	p := seedProduct(t, db, "Galaxy S24", "799.00", 1)

	url, err := svc.UploadImage(ctx, staff, p.ID, "image/png", strings.NewReader("\x89PNG fake"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://cdn.test/storage/products/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	key := strings.TrimPrefix(url, "http://cdn.test/storage/")
	ok, err := disk.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	var stored models.Product
	require.NoError(t, db.First(&stored, p.ID).Error)
	assert.Equal(t, url, stored.ImageURL)

	_, err = svc.UploadImage(ctx, staff, p.ID, "application/pdf", strings.NewReader("x"))
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
	_, err = svc.UploadImage(ctx, staff, 9999, "image/png", strings.NewReader("x"))
	assert.ErrorIs(t, err, services.ErrProductNotFound)
	_, err = svc.UploadImage(ctx, alice, p.ID, "image/png", strings.NewReader("x"))
	assert.ErrorIs(t, err, services.ErrForbidden)

	noDisk := services.NewCatalogService(db, nil)
	_, err = noDisk.UploadImage(ctx, staff, p.ID, "image/png", strings.NewReader("x"))
	assert.True(t, services.IsRetryable(err))
}

func strPtr(s string) *string { return &s }

func TestUpdateProductKeepsPlacedPrices(t *testing.T) {
	svc, db, _ := newCatalog(t)
	orders := services.NewOrderService(db)
	ctx := context.Background()
	p := seedProduct(t, db, "Pixel 8", "699.00", 5)

	placed, err := orders.PlaceOrder(ctx, alice, cart(line(p.ID, "", 1)))
	require.NoError(t, err)

	_, err = svc.UpdateProduct(ctx, alice, p.ID, services.ProductUpdate{Price: pricePtr("1.00")})
	assert.ErrorIs(t, err, services.ErrForbidden)

	updated, err := svc.UpdateProduct(ctx, staff, p.ID, services.ProductUpdate{
		Name:     strPtr(" Pixel 8a "),
		Category: strPtr("refurbished"),
		Price:    pricePtr("499.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Pixel 8a", updated.Name)
	assert.Equal(t, "refurbished", updated.Category)
	assert.Equal(t, "499.00", updated.Price.StringFixed(2))
	assert.Equal(t, p.SKU, updated.SKU)
	assert.Equal(t, 4, updated.Stock)

	kept, err := orders.GetOrder(ctx, alice, placed.ID)
	require.NoError(t, err)
	require.Len(t, kept.Items, 1)
	assert.Equal(t, "699.00", kept.Items[0].UnitPrice.StringFixed(2))
	assert.Equal(t, "Pixel 8", kept.Items[0].ProductName)
	assert.Equal(t, "699.00", kept.TotalAmount.StringFixed(2))

	next, err := orders.PlaceOrder(ctx, alice, cart(line(p.ID, "", 2)))
	require.NoError(t, err)
	assert.Equal(t, "998.00", next.TotalAmount.StringFixed(2))

	cases := map[string]struct {
		id   uint
		in   services.ProductUpdate
		want error
	}{
		"blank name":     {p.ID, services.ProductUpdate{Name: strPtr("  ")}, services.ErrInvalidRequest},
		"negative price": {p.ID, services.ProductUpdate{Price: pricePtr("-1")}, services.ErrInvalidRequest},
		"no fields":      {p.ID, services.ProductUpdate{}, services.ErrInvalidRequest},
		"unknown":        {9999, services.ProductUpdate{Name: strPtr("x")}, services.ErrProductNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.UpdateProduct(ctx, staff, tc.id, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUpdateVariant(t *testing.T) {
	svc, db, _ := newCatalog(t)
	orders := services.NewOrderService(db)
	ctx := context.Background()
	p := seedProduct(t, db, "iPhone 15", "799.00", 0,
		models.Variant{ColorName: "Black", Storage: "128GB", Stock: 2},
		models.Variant{ColorName: "Pink", Storage: "128GB", Stock: 1},
	)
	black, pink := p.Variants[0], p.Variants[1]

	v, err := svc.UpdateVariant(ctx, staff, pink.ID, services.VariantUpdate{Storage: strPtr("256GB"), Price: pricePtr("899.00")})
	require.NoError(t, err)
	assert.Equal(t, "Pink - 256GB", v.Label())
	require.NotNil(t, v.Price)
	assert.Equal(t, "899.00", v.Price.StringFixed(2))
	assert.Equal(t, 1, v.Stock)

	order, err := orders.PlaceOrder(ctx, alice, cart(line(p.ID, "Pink - 256GB", 1)))
	require.NoError(t, err)
	assert.Equal(t, "899.00", order.TotalAmount.StringFixed(2))

	_, err = svc.UpdateVariant(ctx, staff, pink.ID, services.VariantUpdate{ColorName: strPtr(" black "), Storage: strPtr("128gb")})
	assert.ErrorIs(t, err, services.ErrDuplicateVariant)

	_, err = svc.UpdateVariant(ctx, staff, black.ID, services.VariantUpdate{ColorName: strPtr("Black"), ColorHex: strPtr("#111111")})
	require.NoError(t, err, "a variant does not clash with itself")

	_, err = svc.UpdateVariant(ctx, staff, 9999, services.VariantUpdate{ColorName: strPtr("Gold")})
	assert.ErrorIs(t, err, services.ErrVariantNotFound)
	_, err = svc.UpdateVariant(ctx, alice, black.ID, services.VariantUpdate{ColorName: strPtr("Gold")})
	assert.ErrorIs(t, err, services.ErrForbidden)
	_, err = svc.UpdateVariant(ctx, staff, black.ID, services.VariantUpdate{})
	assert.ErrorIs(t, err, services.ErrInvalidRequest)
}

func TestDeleteVariant(t *testing.T) {
	svc, db, _ := newCatalog(t)
	orders := services.NewOrderService(db)
	ctx := context.Background()
	p := seedProduct(t, db, "Hoodie", "40.00", 0,
		models.Variant{ColorName: "Red", Stock: 3},
		models.Variant{ColorName: "Blue", Stock: 2},
	)
	red, blue := p.Variants[0], p.Variants[1]

	placed, err := orders.PlaceOrder(ctx, alice, cart(line(p.ID, "Red", 1)))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteVariant(ctx, alice, red.ID), services.ErrForbidden)
	require.NoError(t, svc.DeleteVariant(ctx, staff, red.ID))
	assert.ErrorIs(t, svc.DeleteVariant(ctx, staff, red.ID), services.ErrVariantNotFound)

	got, err := svc.GetProduct(ctx, staff, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Variants, 1)
	assert.Equal(t, blue.ID, got.Variants[0].ID)
	assert.Equal(t, 2, got.EffectiveStock())

	_, err = orders.PlaceOrder(ctx, alice, cart(line(p.ID, "Red", 1)))
	assert.ErrorIs(t, err, services.ErrVariantNotFound)

	kept, err := orders.GetOrder(ctx, alice, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, "Red", kept.Items[0].VariantName)

	// With its last variant gone the product holds its own, empty counter.
	require.NoError(t, svc.DeleteVariant(ctx, staff, blue.ID))
	_, err = orders.PlaceOrder(ctx, alice, cart(line(p.ID, "", 1)))
	assert.ErrorIs(t, err, services.ErrInsufficientStock)
}

func TestStockBySKU(t *testing.T) {
	svc, db, _ := newCatalog(t)
	ctx := context.Background()
	cable := seedProduct(t, db, "USB-C Cable", "12.50", 7)
	phone := seedProduct(t, db, "Galaxy S24", "799.00", 0,
		models.Variant{ColorName: "Black", Storage: "256GB", Stock: 4, SKU: "s24-blk-256"},
		models.Variant{ColorName: "Violet", Storage: "256GB", Stock: 1},
	)

	levels, err := svc.StockBySKU(ctx, nobody, strings.ToLower(cable.SKU))
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, services.KindProduct, levels[0].Kind)
	assert.Equal(t, 7, levels[0].Remaining)

	levels, err = svc.StockBySKU(ctx, nobody, phone.SKU)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Equal(t, "Violet - 256GB", levels[1].Label)

	levels, err = svc.StockBySKU(ctx, nobody, "S24-BLK-256")
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, "Black - 256GB", levels[0].Label)
	assert.Equal(t, 4, levels[0].Remaining)
	require.NotNil(t, levels[0].VariantID)
	assert.Equal(t, phone.Variants[0].ID, *levels[0].VariantID)

	_, err = svc.StockBySKU(ctx, nobody, "SKU-MISSING")
	assert.ErrorIs(t, err, services.ErrProductNotFound)
	assert.Contains(t, err.Error(), "SKU-MISSING")
	_, err = svc.StockBySKU(ctx, nobody, " ")
	assert.ErrorIs(t, err, services.ErrInvalidRequest)

	require.NoError(t, svc.Deactivate(ctx, staff, cable.ID))
	_, err = svc.StockBySKU(ctx, alice, cable.SKU)
	assert.ErrorIs(t, err, services.ErrProductNotFound)
	_, err = svc.StockBySKU(ctx, staff, cable.SKU)
	assert.NoError(t, err)
}
