// Package routes mounts the shop's HTTP API.
package routes

import (
	"net/http"

	"github.com/graphql-go/graphql"

	"github.com/shashiranjanraj/kashvi-shop/app/controllers"
	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/app/services"
	gql "github.com/shashiranjanraj/kashvi-shop/pkg/graphql"
	"github.com/shashiranjanraj/kashvi-shop/pkg/middleware"
	"github.com/shashiranjanraj/kashvi-shop/pkg/rbac"
	"github.com/shashiranjanraj/kashvi-shop/pkg/router"
)

// Deps are the services the routes hand requests to. StockFeed and Schema
// are optional; their endpoints are skipped when nil.
type Deps struct {
	Auth      *services.AuthService
	Orders    *services.OrderService
	Catalog   *services.CatalogService
	StockFeed http.Handler
	Schema    *graphql.Schema
}

func RegisterAPI(r *router.Router, d Deps) {
	authController := controllers.NewAuthController(d.Auth)
	orderController := controllers.NewOrderController(d.Orders)
	productController := controllers.NewProductController(d.Catalog)

	staff := rbac.HasRole(string(models.RoleStaff))

	api := r.Group("/api")
	api.Post("/login", "auth.login", authController.Login, middleware.OptionalAuth, rbac.Guest)
	api.Post("/register", "auth.register", authController.Register, middleware.OptionalAuth, rbac.Guest)

	catalog := api.Group("/products", middleware.OptionalAuth)
	catalog.Get("", "products.index", productController.Index)
	catalog.Get("/{id}", "products.show", productController.Show)
	api.Get("/inventory/{sku}", "inventory.show", productController.Stock, middleware.OptionalAuth)

	protected := api.Group("", middleware.AuthMiddleware)
	protected.Get("/me", "auth.me", authController.Me)

	orders := protected.Group("/orders")
	orders.Post("", "orders.place", orderController.Place)
	orders.Get("", "orders.index", orderController.Index)
	orders.Get("/{id}", "orders.show", orderController.Show)
	orders.Put("/{id}/status", "orders.status", orderController.UpdateStatus, staff)

	manage := protected.Group("/products", staff)
	manage.Get("/low-stock", "products.low_stock", productController.LowStock)
	manage.Post("", "products.store", productController.Store)
	manage.Put("/{id}", "products.update", productController.Update)
	manage.Post("/{id}/variants", "products.variants.store", productController.AddVariant)
	manage.Post("/{id}/stock", "products.stock", productController.Restock)
	manage.Post("/{id}/image", "products.image", productController.UploadImage)
	manage.Delete("/{id}", "products.destroy", productController.Destroy)

	variants := protected.Group("/variants", staff)
	variants.Put("/{id}", "variants.update", productController.UpdateVariant)
	variants.Delete("/{id}", "variants.destroy", productController.DestroyVariant)

	if d.Schema != nil {
		api.Post("/graphql", "graphql", gql.Handler(*d.Schema), middleware.OptionalAuth)
	}

	if d.StockFeed != nil {
		r.Handle("/ws/stock", "ws.stock", d.StockFeed,
			middleware.TokenFromQuery,
			middleware.AuthMiddleware,
			staff,
		)
	}
}
