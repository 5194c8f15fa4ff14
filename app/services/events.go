package services

import (
	"fmt"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
)

// Event names fired on pkg/event after a transaction commits.
const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
	EventStockChanged       = "stock.changed"
)

// StockLevel is the post-commit counter of one stock-bearing record.
type StockLevel struct {
	Kind        RecordKind `json:"kind"`
	ProductID   uint       `json:"product_id"`
	VariantID   *uint      `json:"variant_id,omitempty"`
	ProductName string     `json:"product_name"`
	Label       string     `json:"label"`
	Remaining   int        `json:"remaining"`
}

// OrderPlaced is the payload of EventOrderPlaced.
type OrderPlaced struct {
	Order  models.Order `json:"order"`
	Levels []StockLevel `json:"levels"`
}

// OrderStatusChanged is the payload of EventOrderStatusChanged.
type OrderStatusChanged struct {
	OrderID uint               `json:"order_id"`
	UserID  uint               `json:"user_id"`
	From    models.OrderStatus `json:"from"`
	To      models.OrderStatus `json:"to"`
}

// StockChanged is the payload of EventStockChanged, fired by catalog
// restocks. Order placements report through OrderPlaced.Levels instead.
type StockChanged struct {
	Level StockLevel `json:"level"`
	Delta int        `json:"delta"`
}

// ProductCacheKey is the redis key GetProduct caches a product under.
func ProductCacheKey(id uint) string {
	return fmt.Sprintf("kshop:product:%d", id)
}
