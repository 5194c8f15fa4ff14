package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/app/repositories"
	"github.com/shashiranjanraj/kashvi-shop/pkg/database"
)

// Descriptor selects a variant of a product. Color and Storage are the
// structured form; Label is the "Color - Storage" display string some
// clients still send, parsed by ParseLabel.
type Descriptor struct {
	Color   string `json:"color,omitempty"`
	Storage string `json:"storage,omitempty"`
	Label   string `json:"variant,omitempty"`
}

// ParseLabel splits "Black - 256GB" on the first " - ". A label without
// the separator is taken as a color.
func ParseLabel(label string) Descriptor {
	label = strings.TrimSpace(label)
	color, storage, _ := strings.Cut(label, " - ")
	return Descriptor{
		Color:   strings.TrimSpace(color),
		Storage: strings.TrimSpace(storage),
		Label:   label,
	}
}

// normalized fills the structured fields from Label when only a label was sent.
func (d Descriptor) normalized() Descriptor {
	d.Color = strings.TrimSpace(d.Color)
	d.Storage = strings.TrimSpace(d.Storage)
	d.Label = strings.TrimSpace(d.Label)
	if d.Color == "" && d.Storage == "" && d.Label != "" {
		return ParseLabel(d.Label)
	}
	return d
}

// IsEmpty reports whether no variant was selected at all.
func (d Descriptor) IsEmpty() bool {
	n := d.normalized()
	return n.Color == "" && n.Storage == "" && n.Label == ""
}

// String renders the descriptor the way it appears in error messages.
func (d Descriptor) String() string {
	n := d.normalized()
	if n.Label != "" {
		return n.Label
	}
	if n.Color == "" && n.Storage == "" {
		return ""
	}
	return models.JoinLabel(n.Color, n.Storage)
}

func (d Descriptor) isStandard() bool {
	n := d.normalized()
	return n.Storage == "" && strings.EqualFold(n.Color, models.StandardLabel)
}

// RecordKind says which table holds the counter a StockRecord points at.
type RecordKind string

const (
	KindProduct RecordKind = "product"
	KindVariant RecordKind = "variant"
)

// StockRecord is the single stock-bearing record a line item resolved to,
// as read inside the placement transaction.
type StockRecord struct {
	Kind        RecordKind
	ProductID   uint
	VariantID   *uint
	ProductName string
	Label       string
	Available   int
	UnitPrice   decimal.Decimal
}

// ResolveOptions tunes Resolve for its caller.
type ResolveOptions struct {
	// RequireActive rejects deactivated products as not found.
	RequireActive bool
}

// StockResolver maps (product, descriptor) to exactly one stock record or
// fails. It never falls back to the product or to the first variant.
type StockResolver struct {
	products *repositories.ProductRepository
}

func NewStockResolver(products *repositories.ProductRepository) *StockResolver {
	return &StockResolver{products: products}
}

// Resolve must be called with the caller's transaction so the stock it
// reports is the stock that transaction will decrement.
func (s *StockResolver) Resolve(ctx context.Context, tx *gorm.DB, productID uint, d Descriptor, opts ResolveOptions) (*StockRecord, error) {
	product, err := s.products.WithTx(tx).FindWithVariants(ctx, productID, database.SupportsRowLocks(tx))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ProductNotFoundError{ProductID: productID}
		}
		return nil, persistence("load product", err)
	}
	if opts.RequireActive && !product.Active {
		return nil, &ProductNotFoundError{ProductID: productID}
	}

	if !product.HasVariants() {
		if !d.IsEmpty() && !d.isStandard() {
			return nil, &VariantNotFoundError{ProductID: product.ID, ProductName: product.Name, Label: d.String()}
		}
		return &StockRecord{
			Kind:        KindProduct,
			ProductID:   product.ID,
			ProductName: product.Name,
			Label:       models.StandardLabel,
			Available:   product.Stock,
			UnitPrice:   product.Price,
		}, nil
	}

	v, err := matchVariant(product, d)
	if err != nil {
		return nil, err
	}
	id := v.ID
	return &StockRecord{
		Kind:        KindVariant,
		ProductID:   product.ID,
		VariantID:   &id,
		ProductName: product.Name,
		Label:       v.Label(),
		Available:   v.Stock,
		UnitPrice:   v.UnitPrice(product),
	}, nil
}

// matchVariant compares case-insensitively. Storage only narrows the match
// when the request supplies it, and a request equal to a variant's full
// label always matches that variant.
func matchVariant(p *models.Product, d Descriptor) (*models.Variant, error) {
	n := d.normalized()
	notFound := &VariantNotFoundError{ProductID: p.ID, ProductName: p.Name, Label: d.String()}
	if n.Color == "" && n.Storage == "" && n.Label == "" {
		return nil, notFound
	}

	var found *models.Variant
	matches := 0
	for i := range p.Variants {
		v := &p.Variants[i]
		if !variantMatches(v, n) {
			continue
		}
		matches++
		found = v
	}

	switch matches {
	case 1:
		return found, nil
	case 0:
		return nil, notFound
	default:
		notFound.Ambiguous = true
		return nil, notFound
	}
}

func variantMatches(v *models.Variant, n Descriptor) bool {
	if n.Label != "" && strings.EqualFold(n.Label, v.Label()) {
		return true
	}
	if n.Color != "" {
		return strings.EqualFold(n.Color, v.ColorName) &&
			(n.Storage == "" || strings.EqualFold(n.Storage, v.Storage))
	}
	return n.Storage != "" && strings.EqualFold(n.Storage, v.Storage)
}
