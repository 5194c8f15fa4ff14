package controllers_test

import (
	"net/http"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/app/routes"
	"github.com/shashiranjanraj/kashvi-shop/app/schema"
	"github.com/shashiranjanraj/kashvi-shop/app/services"
	"github.com/shashiranjanraj/kashvi-shop/pkg/router"
	"github.com/shashiranjanraj/kashvi-shop/pkg/storage"
	"github.com/shashiranjanraj/kashvi-shop/pkg/testkit"
)

const (
	staffID = 1
	aliceID = 2
	bobID   = 3
)

type shop struct {
	db    *gorm.DB
	h     http.Handler
	staff string
	alice string
	bob   string
}

func newShop(t *testing.T) *shop {
	t.Helper()
	db := testkit.DB(t)

	orders := services.NewOrderService(db, services.WithInitialStatus(models.StatusCompleted))
	catalog := services.NewCatalogService(db, storage.NewLocalDisk(t.TempDir(), "http://cdn.test/storage"))
	sch, err := schema.New(orders, catalog)
	require.NoError(t, err)

	r := router.New()
	routes.RegisterAPI(r, routes.Deps{
		Auth:    services.NewAuthService(db),
		Orders:  orders,
		Catalog: catalog,
		Schema:  &sch,
	})

	return &shop{
		db:    db,
		h:     r.Handler(),
		staff: testkit.Token(t, staffID, string(models.RoleStaff)),
		alice: testkit.Token(t, aliceID, string(models.RoleCustomer)),
		bob:   testkit.Token(t, bobID, string(models.RoleCustomer)),
	}
}

func (s *shop) product(t *testing.T, name, price string, stock int, variants ...models.Variant) *models.Product {
	t.Helper()
	p := &models.Product{
		SKU:      services.GenerateSKU(),
		Name:     name,
		Category: "phones",
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Active:   true,
		Variants: variants,
	}
	require.NoError(t, s.db.Create(p).Error)
	return p
}

func (s *shop) stockOf(t *testing.T, v interface{}, id uint) int {
	t.Helper()
	switch v.(type) {
	case models.Variant:
		var row models.Variant
		require.NoError(t, s.db.First(&row, id).Error)
		return row.Stock
	default:
		var row models.Product
		require.NoError(t, s.db.First(&row, id).Error)
		return row.Stock
	}
}

func (s *shop) orderCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.db.Model(&models.Order{}).Count(&n).Error)
	return n
}

type orderJSON struct {
	ID          uint   `json:"id"`
	OrderNumber string `json:"order_number"`
	UserID      uint   `json:"user_id"`
	Status      string `json:"status"`
	TotalAmount string `json:"total_amount"`
	Items       []struct {
		ProductID   uint   `json:"product_id"`
		VariantID   *uint  `json:"variant_id"`
		VariantName string `json:"variant_name"`
		Quantity    int    `json:"quantity"`
		UnitPrice   string `json:"unit_price"`
		LineTotal   string `json:"line_total"`
	} `json:"items"`
}

type productJSON struct {
	ID          uint   `json:"id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Stock       int    `json:"stock"`
	Active      bool   `json:"active"`
	HasVariants bool   `json:"has_variants"`
	Variants    []struct {
		ID    uint   `json:"id"`
		Label string `json:"label"`
		Price string `json:"price"`
		Stock int    `json:"stock"`
	} `json:"variants"`
}

func ptr[T any](v T) *T { return &v }

func decimalOf(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }
