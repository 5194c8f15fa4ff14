package services_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/app/services"
)

var (
	staff    = services.Requester{UserID: 1, Role: models.RoleStaff}
	alice    = services.Requester{UserID: 2, Role: models.RoleCustomer}
	bob      = services.Requester{UserID: 3, Role: models.RoleCustomer}
	nobody   = services.Requester{}
	noStatus = models.OrderStatus("")
)

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func pricePtr(s string) *decimal.Decimal {
	d := price(s)
	return &d
}

func seedProduct(t *testing.T, db *gorm.DB, name, unit string, stock int, variants ...models.Variant) *models.Product {
	t.Helper()
	p := &models.Product{
		SKU:      services.GenerateSKU(),
		Name:     name,
		Category: "phones",
		Price:    price(unit),
		Stock:    stock,
		Active:   true,
		Variants: variants,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func productStock(t *testing.T, db *gorm.DB, id uint) int {
	t.Helper()
	var p models.Product
	require.NoError(t, db.First(&p, id).Error)
	return p.Stock
}

func variantStock(t *testing.T, db *gorm.DB, id uint) int {
	t.Helper()
	var v models.Variant
	require.NoError(t, db.First(&v, id).Error)
	return v.Stock
}

func orderCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.Order{}).Count(&n).Error)
	return n
}

func itemCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.OrderItem{}).Count(&n).Error)
	return n
}

func line(productID uint, label string, qty int) services.LineItem {
	return services.LineItem{ProductID: productID, Descriptor: services.Descriptor{Label: label}, Quantity: qty}
}

func cart(items ...services.LineItem) services.PlaceOrderInput {
	return services.PlaceOrderInput{
		Shipping: services.Shipping{Method: "standard", Address: "1 Main St"},
		Items:    items,
	}
}
