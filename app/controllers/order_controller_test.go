package controllers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/kashvi-shop/app/controllers"
	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/pkg/testkit"
)

func placeBody(items ...map[string]any) map[string]any {
	return map[string]any{
		"shipping_method":  "express",
		"shipping_address": "221B Baker Street",
		"items":            items,
	}
}

func TestPlaceOrder_Created(t *testing.T) {
	s := newShop(t)
	phone := s.product(t, "iPhone 15", "799.00", 0,
		models.Variant{ColorName: "Black", Storage: "128GB", Stock: 4},
		models.Variant{ColorName: "Black", Storage: "256GB", Price: ptr(decimalOf("899.00")), Stock: 2},
	)
	cable := s.product(t, "USB-C Cable", "9.99", 10)

	rec := testkit.Do(t, s.h, testkit.Request{
		Method: http.MethodPost, Path: "/api/orders", Token: s.alice,
		Body: placeBody(
			map[string]any{"product_id": phone.ID, "variant": "black - 256gb", "quantity": 2},
			map[string]any{"product_id": cable.ID, "quantity": 3, "unit_price": "9.99"},
		),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var order orderJSON
	testkit.Decode(t, rec, &order)
	assert.Equal(t, "1827.97", order.TotalAmount)
	assert.Equal(t, string(models.StatusCompleted), order.Status)
	assert.EqualValues(t, aliceID, order.UserID)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Black - 256GB", order.Items[0].VariantName)
	assert.Equal(t, "1798.00", order.Items[0].LineTotal)
	assert.Equal(t, models.StandardLabel, order.Items[1].VariantName)
	assert.Nil(t, order.Items[1].VariantID)

	assert.Equal(t, 0, s.stockOf(t, models.Variant{}, phone.Variants[1].ID))
	assert.Equal(t, 4, s.stockOf(t, models.Variant{}, phone.Variants[0].ID))
	assert.Equal(t, 7, s.stockOf(t, models.Product{}, cable.ID))
}

func TestPlaceOrder_InsufficientStockIsConflict(t *testing.T) {
	s := newShop(t)
	first := s.product(t, "Case", "19.50", 5)
	second := s.product(t, "Charger", "25.00", 1)

	rec := testkit.Do(t, s.h, testkit.Request{
		Method: http.MethodPost, Path: "/api/orders", Token: s.alice,
		Body: placeBody(
			map[string]any{"product_id": first.ID, "quantity": 2},
			map[string]any{"product_id": second.ID, "quantity": 2},
		),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	env := testkit.Decode(t, rec, nil)
	assert.Equal(t, "insufficient_stock", env.Code)

	assert.Equal(t, 5, s.stockOf(t, models.Product{}, first.ID))
	assert.Equal(t, 1, s.stockOf(t, models.Product{}, second.ID))
	assert.Zero(t, s.orderCount(t))
}

func TestPlaceOrder_ErrorMapping(t *testing.T) {
	s := newShop(t)
	phone := s.product(t, "Pixel 8", "699.00", 0, models.Variant{ColorName: "Hazel", Stock: 3})

	cases := map[string]struct {
		body   any
		status int
		code   string
	}{
		"unknown product": {
			placeBody(map[string]any{"product_id": 999, "quantity": 1}),
			http.StatusNotFound, "product_not_found",
		},
		"unknown variant": {
			placeBody(map[string]any{"product_id": phone.ID, "color": "Mint", "quantity": 1}),
			http.StatusNotFound, "variant_not_found",
		},
		"stale price": {
			placeBody(map[string]any{"product_id": phone.ID, "color": "Hazel", "quantity": 1, "unit_price": "599.00"}),
			http.StatusUnprocessableEntity, "invalid_request",
		},
		"zero quantity": {
			placeBody(map[string]any{"product_id": phone.ID, "color": "Hazel", "quantity": 0}),
			http.StatusUnprocessableEntity, "validation_failed",
		},
		"no items": {
			placeBody(),
			http.StatusUnprocessableEntity, "validation_failed",
		},
		"unknown field": {
			map[string]any{"shipping_method": "x", "shipping_address": "y", "coupon": "FREE"},
			http.StatusBadRequest, "bad_request",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: "/api/orders", Token: s.alice, Body: tc.body})
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			env := testkit.Decode(t, rec, nil)
			assert.Equal(t, tc.code, env.Code)
		})
	}

	assert.Equal(t, 3, s.stockOf(t, models.Variant{}, phone.Variants[0].ID))
}

func TestPlaceOrder_ValidationErrorsUseJSONPaths(t *testing.T) {
	s := newShop(t)
	p := s.product(t, "Case", "19.50", 5)

	rec := testkit.Do(t, s.h, testkit.Request{
		Method: http.MethodPost, Path: "/api/orders", Token: s.alice,
		Body: placeBody(
			map[string]any{"product_id": p.ID, "quantity": 1},
			map[string]any{"product_id": p.ID, "quantity": -1},
		),
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := testkit.Decode(t, rec, nil)
	assert.Contains(t, env.Errors, "items[1].quantity")
}

func TestPlaceOrder_RequiresAuth(t *testing.T) {
	s := newShop(t)
	rec := testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: "/api/orders", Body: placeBody()})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaceOrder_IdempotencyKeyReplays(t *testing.T) {
	s := newShop(t)
	p := s.product(t, "Case", "19.50", 5)

	place := func() orderJSON {
		rec := testkit.Do(t, s.h, testkit.Request{
			Method: http.MethodPost, Path: "/api/orders", Token: s.alice,
			Headers: map[string]string{controllers.IdempotencyHeader: "cart-42"},
			Body:    placeBody(map[string]any{"product_id": p.ID, "quantity": 2}),
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var o orderJSON
		testkit.Decode(t, rec, &o)
		return o
	}

	first, second := place(), place()
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.OrderNumber, second.OrderNumber)
	assert.Equal(t, 3, s.stockOf(t, models.Product{}, p.ID))
	assert.EqualValues(t, 1, s.orderCount(t))
}

func TestOrderVisibility(t *testing.T) {
	s := newShop(t)
	p := s.product(t, "Case", "19.50", 10)

	var aliceOrder orderJSON
	rec := testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: "/api/orders", Token: s.alice,
		Body: placeBody(map[string]any{"product_id": p.ID, "quantity": 1})})
	require.Equal(t, http.StatusCreated, rec.Code)
	testkit.Decode(t, rec, &aliceOrder)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: "/api/orders", Token: s.bob,
		Body: placeBody(map[string]any{"product_id": p.ID, "quantity": 1})})
	require.Equal(t, http.StatusCreated, rec.Code)

	var mine []orderJSON
	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: "/api/orders", Token: s.alice})
	require.Equal(t, http.StatusOK, rec.Code)
	testkit.Decode(t, rec, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, aliceOrder.ID, mine[0].ID)

	var all []orderJSON
	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: "/api/orders", Token: s.staff})
	testkit.Decode(t, rec, &all)
	assert.Len(t, all, 2)

	path := "/api/orders/" + itoa(aliceOrder.ID)
	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: path, Token: s.bob})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: path, Token: s.alice})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodGet, Path: "/api/orders/abc", Token: s.alice})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	s := newShop(t)
	p := s.product(t, "Case", "19.50", 10)

	var order orderJSON
	rec := testkit.Do(t, s.h, testkit.Request{Method: http.MethodPost, Path: "/api/orders", Token: s.alice,
		Body: placeBody(map[string]any{"product_id": p.ID, "quantity": 4})})
	require.Equal(t, http.StatusCreated, rec.Code)
	testkit.Decode(t, rec, &order)
	path := "/api/orders/" + itoa(order.ID) + "/status"

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPut, Path: path, Token: s.alice, Body: map[string]any{"status": "SHIPPED"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPut, Path: path, Token: s.staff, Body: map[string]any{"status": "teleported"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = testkit.Do(t, s.h, testkit.Request{Method: http.MethodPut, Path: path, Token: s.staff, Body: map[string]any{"status": "cancelled"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	testkit.Decode(t, rec, &order)
	assert.Equal(t, string(models.StatusCancelled), order.Status)

	// Cancelling does not restock.
	assert.Equal(t, 6, s.stockOf(t, models.Product{}, p.ID))
}
