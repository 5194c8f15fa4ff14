package controllers_test

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/pkg/testkit"
)

func TestCreateProductWithVariants(t *testing.T) {
	s := newShop(t)

	body := map[string]any{
		"sku":   "galaxy-s24",
		"name":  "Galaxy S24",
		"price": "899.99",
		"stock": 40,
		"variants": []map[string]any{
			{"color_name": "Onyx Black", "color_hex": "#000000", "storage": "128GB", "stock": 3},
			{"color_name": "Onyx Black", "storage": "256GB", "stock": 2, "price": "959.99"},
		},
	}

	rec := testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: "/api/products", Token: s.alice, Body: body})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: "/api/products", Token: s.staff, Body: body})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var p productJSON
	testkit.Decode(t, rec, &p)
	assert.Equal(t, "GALAXY-S24", p.SKU)
	assert.True(t, p.HasVariants)
	assert.Equal(t, 5, p.Stock, "stock is the sum over variants")
	require.Len(t, p.Variants, 2)
	assert.Equal(t, "Onyx Black - 128GB", p.Variants[0].Label)
	assert.Equal(t, "899.99", p.Variants[0].Price)
	assert.Equal(t, "959.99", p.Variants[1].Price)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: "/api/products", Token: s.staff, Body: body})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_sku", testkit.Decode(t, rec, nil).Code)
}

func TestCreateProductValidation(t *testing.T) {
	s := newShop(t)

	rec := testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: "/api/products", Token: s.staff, Body: map[string]any{
		"name":  "Bad",
		"price": "10.00",
		"variants": []map[string]any{
			{"color_name": "Red", "color_hex": "red"},
		},
	}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, testkit.Decode(t, rec, nil).Errors, "variants[0].color_hex")

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: "/api/products", Token: s.staff, Body: map[string]any{
		"name": "No price",
	}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, testkit.Decode(t, rec, nil).Errors, "price")
}

func TestListProductsHidesInactiveFromCustomers(t *testing.T) {
	s := newShop(t)
	s.product(t, "iPhone 15", "799.00", 5)
	s.product(t, "Pixel 8", "699.00", 5)
	old := s.product(t, "iPhone 12", "399.00", 1)

	rec := testkit.Do(t, s.h, testkit.Request{Method: http.MethodDelete, Path: "/api/products/" + itoa(old.ID), Token: s.staff})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page struct {
		Items      []productJSON `json:"items"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: "/api/products?search=iphone"})
	require.Equal(t, http.StatusOK, rec.Code)
	testkit.Decode(t, rec, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "iPhone 15", page.Items[0].Name)
	assert.EqualValues(t, 1, page.Pagination.Total)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: "/api/products?search=iphone", Token: s.staff})
	testkit.Decode(t, rec, &page)
	assert.Len(t, page.Items, 2)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: "/api/products/" + itoa(old.ID)})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: "/api/products/" + itoa(old.ID), Token: s.staff})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAddVariantAndRestock(t *testing.T) {
	s := newShop(t)
	p := s.product(t, "iPhone 15", "799.00", 0, models.Variant{ColorName: "Black", Storage: "128GB", Stock: 1})
	base := "/api/products/" + itoa(p.ID)

	rec := testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: base + "/variants", Token: s.staff,
		Body: map[string]any{"color_name": "Pink", "storage": "128GB", "stock": 6}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var v struct {
		ID    uint   `json:"id"`
		Label string `json:"label"`
		Price string `json:"price"`
	}
	testkit.Decode(t, rec, &v)
	assert.Equal(t, "Pink - 128GB", v.Label)
	assert.Equal(t, "799.00", v.Price)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: base + "/variants", Token: s.staff,
		Body: map[string]any{"color_name": "pink", "storage": "128gb"}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: base + "/stock", Token: s.staff,
		Body: map[string]any{"variant_id": v.ID, "delta": 4}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var level struct {
		Remaining int    `json:"remaining"`
		Label     string `json:"label"`
	}
	testkit.Decode(t, rec, &level)
	assert.Equal(t, 10, level.Remaining)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: base + "/stock", Token: s.staff,
		Body: map[string]any{"variant_id": v.ID, "delta": -11}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 10, s.stockOf(t, models.Variant{}, v.ID))

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: base + "/stock", Token: s.staff,
		Body: map[string]any{"delta": 1}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "variant_id is required for a variant product")
}

func TestUploadImage(t *testing.T) {
	s := newShop(t)
	p := s.product(t, "Case", "19.50", 3)
	path := "/api/products/" + itoa(p.ID) + "/image"

	upload := func(content []byte) *bytes.Buffer {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("image", "case.png")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())
		return &buf
	}
	png := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

	body := upload(png)
	ct := "multipart/form-data; boundary=" + boundaryOf(t, body)
	rec := testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: path, Token: s.staff, Body: body,
		Headers: map[string]string{"Content-Type": ct}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out struct {
		ImageURL string `json:"image_url"`
	}
	testkit.Decode(t, rec, &out)
	assert.True(t, strings.HasPrefix(out.ImageURL, "http://cdn.test/storage/products/"+itoa(p.ID)+"/"), out.ImageURL)
	assert.True(t, strings.HasSuffix(out.ImageURL, ".png"))

	var stored models.Product
	require.NoError(t, s.db.First(&stored, p.ID).Error)
	assert.Equal(t, out.ImageURL, stored.ImageURL)

	body = upload([]byte("plain text, not an image"))
	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: path, Token: s.staff, Body: body,
		Headers: map[string]string{"Content-Type": "multipart/form-data; boundary=" + boundaryOf(t, body)}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// boundaryOf reads the multipart boundary from the first line of body.
func boundaryOf(t *testing.T, body *bytes.Buffer) string {
	t.Helper()
	first, _, ok := strings.Cut(body.String(), "\r\n")
	require.True(t, ok)
	return strings.TrimPrefix(first, "--")
}

func TestLowStockReport(t *testing.T) {
	s := newShop(t)
	s.product(t, "USB-C Cable", "12.50", 250)
	clear := s.product(t, "Clear Case", "19.00", 2)

	rec := testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: "/api/products/low-stock", Token: s.alice})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: "/api/products/low-stock?threshold=abc", Token: s.staff})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: "/api/products/low-stock?threshold=5", Token: s.staff})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var levels []struct {
		ProductID uint   `json:"product_id"`
		Label     string `json:"label"`
		Remaining int    `json:"remaining"`
	}
	testkit.Decode(t, rec, &levels)
	require.Len(t, levels, 1)
	assert.Equal(t, clear.ID, levels[0].ProductID)
	assert.Equal(t, "Standard", levels[0].Label)
	assert.Equal(t, 2, levels[0].Remaining)
}

func TestUpdateProductPriceLeavesPlacedOrders(t *testing.T) {
	s := newShop(t)
	p := s.product(t, "Pixel 8", "699.00", 5)
	path := "/api/products/" + itoa(p.ID)

	rec := testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: "/api/orders", Token: s.alice,
		Body: placeBody(map[string]any{"product_id": p.ID, "quantity": 1})})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var placed orderJSON
	testkit.Decode(t, rec, &placed)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPut, Path: path, Token: s.alice, Body: map[string]any{"price": "499.00"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPut, Path: path, Token: s.staff, Body: map[string]any{"sku": "NEW-SKU"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "the sku cannot be changed")

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPut, Path: path, Token: s.staff, Body: map[string]any{"price": "-5"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPut, Path: path, Token: s.staff,
		Body: map[string]any{"name": "Pixel 8a", "price": "499.00"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated productJSON
	testkit.Decode(t, rec, &updated)
	assert.Equal(t, "Pixel 8a", updated.Name)
	assert.Equal(t, "499.00", updated.Price)
	assert.Equal(t, p.SKU, updated.SKU)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: "/api/orders/" + itoa(placed.ID), Token: s.alice})
	require.Equal(t, http.StatusOK, rec.Code)
	var again orderJSON
	testkit.Decode(t, rec, &again)
	assert.Equal(t, "699.00", again.TotalAmount)
	assert.Equal(t, "699.00", again.Items[0].UnitPrice)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: "/api/orders", Token: s.alice,
		Body: placeBody(map[string]any{"product_id": p.ID, "quantity": 1})})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var next orderJSON
	testkit.Decode(t, rec, &next)
	assert.Equal(t, "499.00", next.TotalAmount)
}

func TestUpdateAndDeleteVariant(t *testing.T) {
	s := newShop(t)
	p := s.product(t, "iPhone 15", "799.00", 0,
		models.Variant{ColorName: "Black", Storage: "128GB", Stock: 2},
		models.Variant{ColorName: "Pink", Storage: "128GB", Stock: 1},
	)
	black, pink := p.Variants[0], p.Variants[1]

	rec := testkit.Do(t, s.h, testkit.Request{Method: http.MethodPut, Path: "/api/variants/" + itoa(pink.ID), Token: s.staff,
		Body: map[string]any{"storage": "256GB", "price": "899.00"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v struct {
		ID    uint   `json:"id"`
		Label string `json:"label"`
		Price string `json:"price"`
		Stock int    `json:"stock"`
	}
	testkit.Decode(t, rec, &v)
	assert.Equal(t, "Pink - 256GB", v.Label)
	assert.Equal(t, "899.00", v.Price)
	assert.Equal(t, 1, v.Stock)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPut, Path: "/api/variants/" + itoa(pink.ID), Token: s.staff,
		Body: map[string]any{"color_name": "black", "storage": "128gb"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_variant", testkit.Decode(t, rec, nil).Code)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPut, Path: "/api/variants/" + itoa(pink.ID), Token: s.staff,
		Body: map[string]any{"stock": 50}})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "stock moves through restock only")

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodDelete, Path: "/api/variants/" + itoa(black.ID), Token: s.alice})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodDelete, Path: "/api/variants/" + itoa(black.ID), Token: s.staff})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodDelete, Path: "/api/variants/" + itoa(black.ID), Token: s.staff})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "variant_not_found", testkit.Decode(t, rec, nil).Code)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: "/api/products/" + itoa(p.ID)})
	require.Equal(t, http.StatusOK, rec.Code)
	var got productJSON
	testkit.Decode(t, rec, &got)
	require.Len(t, got.Variants, 1)
	assert.Equal(t, "Pink - 256GB", got.Variants[0].Label)
}

func TestInventoryBySKU(t *testing.T) {
	s := newShop(t)
	p := s.product(t, "Galaxy S24", "799.00", 0,
		models.Variant{ColorName: "Black", Storage: "256GB", Stock: 4, SKU: "s24-blk-256"},
		models.Variant{ColorName: "Violet", Storage: "256GB", Stock: 1},
	)

	var levels []struct {
		VariantID *uint  `json:"variant_id"`
		Label     string `json:"label"`
		Remaining int    `json:"remaining"`
	}
	rec := testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: "/api/inventory/" + p.SKU})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	testkit.Decode(t, rec, &levels)
	require.Len(t, levels, 2)
	assert.Equal(t, 4, levels[0].Remaining)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: "/api/inventory/S24-BLK-256"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	testkit.Decode(t, rec, &levels)
	require.Len(t, levels, 1)
	assert.Equal(t, "Black - 256GB", levels[0].Label)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: "/api/inventory/NOPE-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "product_not_found", testkit.Decode(t, rec, nil).Code)
}
