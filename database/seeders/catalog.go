package seeders

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/app/services"
	"github.com/shashiranjanraj/kashvi-shop/config"
	"github.com/shashiranjanraj/kashvi-shop/pkg/auth"
)

const staffEmail = "staff@kshop.local"

func init() {
	Register("staff", SeedStaff)
	Register("catalog", SeedCatalog)
}

// SeedStaff creates the staff account. The password comes from
// SEED_STAFF_PASSWORD.
func SeedStaff(ctx context.Context, db *gorm.DB) error {
	var existing models.User
	err := db.WithContext(ctx).Where("email = ?", staffEmail).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := auth.HashPassword(config.Get("SEED_STAFF_PASSWORD", "change-me-staff"))
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Create(&models.User{
		Name:     "Store Staff",
		Email:    staffEmail,
		Password: hash,
		Role:     models.RoleStaff,
	}).Error
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// demoCatalog mixes variant and standalone products so every order path
// can be tried by hand.
var demoCatalog = []services.ProductInput{
	{
		SKU: "IPHONE-15", Name: "iPhone 15", Category: "phones", Price: dec("799.00"),
		Description: "6.1-inch display, A16 Bionic.",
		Variants: []services.VariantInput{
			{ColorName: "Black", ColorHex: "#000000", Storage: "128GB", Stock: 10},
			{ColorName: "Black", ColorHex: "#000000", Storage: "256GB", Price: decPtr("899.00"), Stock: 5},
			{ColorName: "Blue", ColorHex: "#A7C1D9", Storage: "128GB", Stock: 3},
		},
	},
	{
		SKU: "PIXEL-8", Name: "Pixel 8", Category: "phones", Price: dec("699.00"),
		Variants: []services.VariantInput{
			{ColorName: "Obsidian", ColorHex: "#1B1B1B", Stock: 4},
			{ColorName: "Hazel", ColorHex: "#8E8A7C", Stock: 2},
		},
	},
	{
		SKU: "USB-C-CABLE", Name: "USB-C Cable 1m", Category: "accessories", Price: dec("9.99"), Stock: 250,
	},
	{
		SKU: "CASE-CLEAR", Name: "Clear Case", Category: "accessories", Price: dec("19.50"), Stock: 3,
	},
}

// SeedCatalog creates the demo products through the catalog service so the
// same validation applies. Products whose SKU already exists are skipped.
func SeedCatalog(ctx context.Context, db *gorm.DB) error {
	catalog := services.NewCatalogService(db, nil)
	staff := services.Requester{Role: models.RoleStaff}

	for _, in := range demoCatalog {
		_, err := catalog.CreateProduct(ctx, staff, in)
		if err != nil && !errors.Is(err, services.ErrDuplicateSKU) {
			return err
		}
	}
	return nil
}
