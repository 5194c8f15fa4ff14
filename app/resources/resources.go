// Package resources defines the JSON shapes the API returns for orders and
// products. Money is rendered as a two-decimal string.
package resources

import (
	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/app/services"
	"github.com/shashiranjanraj/kashvi-shop/pkg/resource"
)

type Order struct{}

func (Order) ToArray(v interface{}) resource.Map {
	o := v.(models.Order)
	return resource.Map{
		"id":               o.ID,
		"order_number":     o.OrderNumber,
		"user_id":          o.UserID,
		"status":           o.Status,
		"shipping_method":  o.ShippingMethod,
		"shipping_address": o.ShippingAddress,
		"total_amount":     o.TotalAmount.StringFixed(2),
		"created_at":       o.CreatedAt,
		"items":            resource.CollectionOf(OrderItem{}, o.Items),
	}
}

type OrderItem struct{}

func (OrderItem) ToArray(v interface{}) resource.Map {
	it := v.(models.OrderItem)
	return resource.Map{
		"id":           it.ID,
		"product_id":   it.ProductID,
		"variant_id":   it.VariantID,
		"product_name": it.ProductName,
		"variant_name": it.VariantName,
		"quantity":     it.Quantity,
		"unit_price":   it.UnitPrice.StringFixed(2),
		"line_total":   it.LineTotal().StringFixed(2),
	}
}

type Product struct{}

func (Product) ToArray(v interface{}) resource.Map {
	p := v.(models.Product)
	return resource.Map{
		"id":           p.ID,
		"sku":          p.SKU,
		"name":         p.Name,
		"description":  p.Description,
		"category":     p.Category,
		"image_url":    p.ImageURL,
		"price":        p.Price.StringFixed(2),
		"stock":        p.EffectiveStock(),
		"active":       p.Active,
		"has_variants": p.HasVariants(),
		"variants":     resource.CollectionOf(variant{product: &p}, p.Variants),
	}
}

type variant struct{ product *models.Product }

func (r variant) ToArray(v interface{}) resource.Map {
	vr := v.(models.Variant)
	return resource.Map{
		"id":         vr.ID,
		"label":      vr.Label(),
		"color_name": vr.ColorName,
		"color_hex":  vr.ColorHex,
		"storage":    vr.Storage,
		"price":      vr.UnitPrice(r.product).StringFixed(2),
		"stock":      vr.Stock,
		"sku":        vr.SKU,
		"image_url":  vr.ImageURL,
	}
}

// Variant renders a variant on its own, for AddVariant responses.
func Variant(p *models.Product) resource.Transformer { return variant{product: p} }

type StockLevel struct{}

func (StockLevel) ToArray(v interface{}) resource.Map {
	l := v.(services.StockLevel)
	return resource.Map{
		"kind":         l.Kind,
		"product_id":   l.ProductID,
		"variant_id":   l.VariantID,
		"product_name": l.ProductName,
		"label":        l.Label,
		"remaining":    l.Remaining,
	}
}

type User struct{}

func (User) ToArray(v interface{}) resource.Map {
	u := v.(models.User)
	return resource.Map{
		"id":    u.ID,
		"name":  u.Name,
		"email": u.Email,
		"role":  u.Role,
	}
}
