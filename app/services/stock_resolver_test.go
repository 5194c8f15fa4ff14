package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/app/repositories"
	"github.com/shashiranjanraj/kashvi-shop/app/services"
	"github.com/shashiranjanraj/kashvi-shop/pkg/testkit"
)

func TestParseLabel(t *testing.T) {
	cases := []struct {
		in             string
		color, storage string
	}{
		{"Black - 256GB", "Black", "256GB"},
		{"  Deep Purple -  1TB ", "Deep Purple", "1TB"},
		{"Red", "Red", ""},
		{"Sky - Blue - 128GB", "Sky", "Blue - 128GB"},
		{"", "", ""},
	}
	for _, c := range cases {
		d := services.ParseLabel(c.in)
		assert.Equal(t, c.color, d.Color, c.in)
		assert.Equal(t, c.storage, d.Storage, c.in)
	}
}

func TestDescriptorString(t *testing.T) {
	assert.Equal(t, "Black - 256GB", services.Descriptor{Color: "Black", Storage: "256GB"}.String())
	assert.Equal(t, "Black", services.Descriptor{Color: " Black "}.String())
	assert.Equal(t, "black - 256gb", services.Descriptor{Label: "black - 256gb"}.String())
	assert.True(t, services.Descriptor{Label: "  "}.IsEmpty())
	assert.False(t, services.Descriptor{Storage: "256GB"}.IsEmpty())
}

func resolve(t *testing.T, db *gorm.DB, productID uint, d services.Descriptor) (*services.StockRecord, error) {
	t.Helper()
	r := services.NewStockResolver(repositories.NewProductRepository(db))
	return r.Resolve(context.Background(), db, productID, d, services.ResolveOptions{RequireActive: true})
}

func TestResolve(t *testing.T) {
	db := testkit.DB(t)
	phone := seedProduct(t, db, "iPhone 15", "999.00", 0,
		models.Variant{ColorName: "Midnight", Storage: "256GB", Stock: 2},
		models.Variant{ColorName: "Starlight", Storage: "512GB", Stock: 3, Price: pricePtr("1199.00")},
	)
	cable := seedProduct(t, db, "USB-C Cable", "12.50", 9)

	rec, err := resolve(t, db, phone.ID, services.Descriptor{Storage: "512gb"})
	require.NoError(t, err)
	assert.Equal(t, services.KindVariant, rec.Kind)
	assert.Equal(t, phone.Variants[1].ID, *rec.VariantID)
	assert.Equal(t, 3, rec.Available)
	assert.Equal(t, "1199.00", rec.UnitPrice.StringFixed(2))
	assert.Equal(t, "Starlight - 512GB", rec.Label)

	rec, err = resolve(t, db, phone.ID, services.Descriptor{Color: "MIDNIGHT"})
	require.NoError(t, err)
	assert.Equal(t, phone.Variants[0].ID, *rec.VariantID)
	assert.Equal(t, "999.00", rec.UnitPrice.StringFixed(2), "variant without a price inherits the product's")

	_, err = resolve(t, db, phone.ID, services.Descriptor{Color: "Midnight", Storage: "512GB"})
	assert.ErrorIs(t, err, services.ErrVariantNotFound)

	rec, err = resolve(t, db, cable.ID, services.Descriptor{})
	require.NoError(t, err)
	assert.Equal(t, services.KindProduct, rec.Kind)
	assert.Nil(t, rec.VariantID)
	assert.Equal(t, models.StandardLabel, rec.Label)
	assert.Equal(t, 9, rec.Available)

	_, err = resolve(t, db, 9999, services.Descriptor{})
	assert.ErrorIs(t, err, services.ErrProductNotFound)
}

func TestResolveLabelContainingSeparator(t *testing.T) {
	db := testkit.DB(t)
	p := seedProduct(t, db, "Pixel 8", "699.00", 0,
		models.Variant{ColorName: "Mint - Limited", Storage: "128GB", Stock: 1},
	)

	rec, err := resolve(t, db, p.ID, services.Descriptor{Label: "mint - limited - 128gb"})
	require.NoError(t, err)
	assert.Equal(t, p.Variants[0].ID, *rec.VariantID)
}
