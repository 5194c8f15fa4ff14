package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StandardLabel names the single stock record of a product without variants.
const StandardLabel = "Standard"

// Product is a catalog item. A product with variants holds its stock on the
// variants; a product without variants is itself the stock-bearing record.
type Product struct {
	gorm.Model
	SKU         string          `gorm:"size:100;uniqueIndex;not null"        json:"sku"`
	Name        string          `gorm:"size:255;not null;index"              json:"name"`
	Description string          `gorm:"type:text"                            json:"description"`
	Category    string          `gorm:"size:100;index"                       json:"category"`
	ImageURL    string          `gorm:"size:512"                             json:"image_url"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	Stock       int             `gorm:"not null;default:0;check:stock >= 0"  json:"stock"`
	Active      bool            `gorm:"not null;default:true;index"          json:"active"`
	Variants    []Variant       `gorm:"constraint:OnDelete:CASCADE"          json:"variants,omitempty"`
}

// HasVariants reports whether stock lives on variants.
func (p *Product) HasVariants() bool { return len(p.Variants) > 0 }

// EffectiveStock is the sum of variant stock, or the product's own counter
// when it has no variants. Variants must be preloaded.
func (p *Product) EffectiveStock() int {
	if !p.HasVariants() {
		return p.Stock
	}
	total := 0
	for _, v := range p.Variants {
		total += v.Stock
	}
	return total
}

// Variant is a purchasable configuration of a product, discriminated by
// color and storage. Empty strings stand for "not applicable" so the unique
// index treats them as values.
type Variant struct {
	ID        uint             `gorm:"primaryKey"                                                  json:"id"`
	ProductID uint             `gorm:"not null;uniqueIndex:idx_variant_discriminator,priority:1"   json:"product_id"`
	ColorName string           `gorm:"size:100;not null;default:'';uniqueIndex:idx_variant_discriminator,priority:2" json:"color_name"`
	ColorHex  string           `gorm:"size:9"                                                      json:"color_hex,omitempty"`
	Storage   string           `gorm:"size:50;not null;default:'';uniqueIndex:idx_variant_discriminator,priority:3"  json:"storage"`
	Price     *decimal.Decimal `gorm:"type:decimal(12,2)"                                          json:"price,omitempty"`
	Stock     int              `gorm:"not null;default:0;check:stock >= 0"                         json:"stock"`
	SKU       string           `gorm:"size:100;index"                                              json:"sku,omitempty"`
	ImageURL  string           `gorm:"size:512"                                                    json:"image_url,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Label renders the descriptor frozen onto order lines:
// "Black - 256GB", "Black", "256GB" or "Standard".
func (v *Variant) Label() string {
	return JoinLabel(v.ColorName, v.Storage)
}

// UnitPrice is the variant's override price, or the owning product's price.
func (v *Variant) UnitPrice(p *Product) decimal.Decimal {
	if v.Price != nil {
		return *v.Price
	}
	return p.Price
}

// JoinLabel builds a display label from its parts.
func JoinLabel(color, storage string) string {
	color, storage = strings.TrimSpace(color), strings.TrimSpace(storage)
	switch {
	case color != "" && storage != "":
		return color + " - " + storage
	case color != "":
		return color
	case storage != "":
		return storage
	default:
		return StandardLabel
	}
}
