package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ParseOrderStatus normalises case and validates s.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.Valid()
}

// Order is a committed purchase. Items carry the price and label captured
// at placement; later catalog edits never change them.
type Order struct {
	gorm.Model
	OrderNumber     string          `gorm:"size:36;uniqueIndex;not null"                     json:"order_number"`
	UserID          uint            `gorm:"not null;index;uniqueIndex:idx_order_idempotency"  json:"user_id"`
	Status          OrderStatus     `gorm:"size:20;not null;index"                           json:"status"`
	ShippingMethod  string          `gorm:"size:100"                                         json:"shipping_method"`
	ShippingAddress string          `gorm:"type:text"                                        json:"shipping_address"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null"                      json:"total_amount"`
	IdempotencyKey  *string         `gorm:"size:100;uniqueIndex:idx_order_idempotency"       json:"-"`
	RequestHash     string          `gorm:"size:64"                                          json:"-"`
	Items           []OrderItem     `gorm:"constraint:OnDelete:CASCADE"                      json:"items"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID          uint            `gorm:"primaryKey"                  json:"id"`
	OrderID     uint            `gorm:"not null;index"              json:"order_id"`
	ProductID   uint            `gorm:"not null;index"              json:"product_id"`
	VariantID   *uint           `gorm:"index"                       json:"variant_id,omitempty"`
	ProductName string          `gorm:"size:255;not null"           json:"product_name"`
	VariantName string          `gorm:"size:255;not null"           json:"variant_name"`
	Quantity    int             `gorm:"not null;check:quantity > 0" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// LineTotal is quantity × unit price.
func (i *OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// RecomputeTotal sets TotalAmount from the items.
func (o *Order) RecomputeTotal() {
	total := decimal.Zero
	for i := range o.Items {
		total = total.Add(o.Items[i].LineTotal())
	}
	o.TotalAmount = total
}
