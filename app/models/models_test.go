package models_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
)

func TestVariantLabel(t *testing.T) {
	cases := []struct {
		color, storage, want string
	}{
		{"Black", "256GB", "Black - 256GB"},
		{"Black", "", "Black"},
		{"", "512GB", "512GB"},
		{"", "", "Standard"},
		{"  Titan Gray ", " 1TB", "Titan Gray - 1TB"},
	}
	for _, c := range cases {
		v := models.Variant{ColorName: c.color, Storage: c.storage}
		assert.Equal(t, c.want, v.Label())
	}
}

func TestVariantUnitPriceFallsBackToProduct(t *testing.T) {
	p := &models.Product{Price: decimal.RequireFromString("799.00")}
	override := decimal.RequireFromString("899.00")

	assert.True(t, (&models.Variant{}).UnitPrice(p).Equal(p.Price))
	assert.True(t, (&models.Variant{Price: &override}).UnitPrice(p).Equal(override))
}

func TestEffectiveStock(t *testing.T) {
	p := &models.Product{Stock: 9}
	assert.Equal(t, 9, p.EffectiveStock())

	p.Variants = []models.Variant{{Stock: 2}, {Stock: 3}}
	assert.True(t, p.HasVariants())
	assert.Equal(t, 5, p.EffectiveStock())
}

func TestOrderTotal(t *testing.T) {
	o := models.Order{Items: []models.OrderItem{
		{Quantity: 2, UnitPrice: decimal.RequireFromString("19.99")},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("0.02")},
	}}
	o.RecomputeTotal()
	assert.Equal(t, "40.00", o.TotalAmount.StringFixed(2))
}

func TestParseOrderStatus(t *testing.T) {
	st, ok := models.ParseOrderStatus(" cancelled ")
	assert.True(t, ok)
	assert.Equal(t, models.StatusCancelled, st)

	_, ok = models.ParseOrderStatus("SHIPPED")
	assert.False(t, ok)
}
