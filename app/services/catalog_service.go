package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/app/repositories"
	"github.com/shashiranjanraj/kashvi-shop/config"
	"github.com/shashiranjanraj/kashvi-shop/pkg/cache"
	"github.com/shashiranjanraj/kashvi-shop/pkg/database"
	"github.com/shashiranjanraj/kashvi-shop/pkg/event"
	"github.com/shashiranjanraj/kashvi-shop/pkg/logger"
	"github.com/shashiranjanraj/kashvi-shop/pkg/orm"
	"github.com/shashiranjanraj/kashvi-shop/pkg/storage"
)

// VariantInput describes a variant to create.
type VariantInput struct {
	ColorName string           `json:"color_name"`
	ColorHex  string           `json:"color_hex"`
	Storage   string           `json:"storage"`
	Price     *decimal.Decimal `json:"price"`
	Stock     int              `json:"stock"`
	SKU       string           `json:"sku"`
	ImageURL  string           `json:"image_url"`
}

// ProductInput describes a product to create. Stock is ignored when
// variants are given; stock then lives on the variants.
type ProductInput struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"image_url"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Variants    []VariantInput  `json:"variants"`
}

// CatalogService manages products, variants and their stock outside of
// order placement.
type CatalogService struct {
	db       *gorm.DB
	products *repositories.ProductRepository
	disk     storage.Disk
	cacheTTL time.Duration
}

// NewCatalogService wires the service to db. disk may be nil, in which
// case UploadImage reports an error.
func NewCatalogService(db *gorm.DB, disk storage.Disk) *CatalogService {
	return &CatalogService{
		db:       db,
		products: repositories.NewProductRepository(db),
		disk:     disk,
		cacheTTL: time.Duration(config.ProductCacheTTL()) * time.Second,
	}
}

// GenerateSKU returns "SKU-" followed by eight upper-case hex characters.
func GenerateSKU() string {
	return "SKU-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *CatalogService) CreateProduct(ctx context.Context, req Requester, in ProductInput) (*models.Product, error) {
	if !req.CanManageCatalog() {
		return nil, ErrForbidden
	}
	if err := validateProduct(in); err != nil {
		return nil, err
	}

	sku := strings.ToUpper(strings.TrimSpace(in.SKU))
	if sku == "" {
		sku = GenerateSKU()
	}
	p := &models.Product{
		SKU:         sku,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Category:    strings.TrimSpace(in.Category),
		ImageURL:    in.ImageURL,
		Price:       in.Price,
		Stock:       in.Stock,
		Active:      true,
	}
	if len(in.Variants) > 0 {
		p.Stock = 0
		for _, v := range in.Variants {
			p.Variants = append(p.Variants, newVariant(v))
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.products.WithTx(tx)
		exists, err := products.SKUExists(ctx, sku)
		if err != nil {
			return persistence("check sku", err)
		}
		if exists {
			return fmt.Errorf("sku %s: %w", sku, ErrDuplicateSKU)
		}
		return products.Create(ctx, p)
	})
	if err != nil {
		switch {
		case isDomainError(err):
			return nil, err
		case database.IsDuplicateKey(err):
			return nil, fmt.Errorf("sku %s: %w", sku, ErrDuplicateSKU)
		default:
			return nil, persistence("create product", err)
		}
	}

	logger.WithCtx(ctx).Info("product created", "product_id", p.ID, "sku", p.SKU, "variants", len(p.Variants))
	return p, nil
}

func validateProduct(in ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return invalid("name", "is required")
	}
	if in.Price.IsNegative() {
		return invalid("price", "must not be negative")
	}
	if in.Stock < 0 {
		return invalid("stock", "must not be negative")
	}
	seen := make(map[string]bool, len(in.Variants))
	for i, v := range in.Variants {
		if err := validateVariant(fmt.Sprintf("variants[%d]", i), v); err != nil {
			return err
		}
		k := discriminator(v.ColorName, v.Storage)
		if seen[k] {
			return fmt.Errorf("variant %q listed twice: %w", models.JoinLabel(v.ColorName, v.Storage), ErrDuplicateVariant)
		}
		seen[k] = true
	}
	return nil
}

func validateVariant(field string, v VariantInput) error {
	if v.Stock < 0 {
		return invalid(field+".stock", "must not be negative")
	}
	if v.Price != nil && v.Price.IsNegative() {
		return invalid(field+".price", "must not be negative")
	}
	return nil
}

func discriminator(color, storage string) string {
	return strings.ToLower(strings.TrimSpace(color)) + "\x00" + strings.ToLower(strings.TrimSpace(storage))
}

func newVariant(in VariantInput) models.Variant {
	return models.Variant{
		ColorName: strings.TrimSpace(in.ColorName),
		ColorHex:  strings.TrimSpace(in.ColorHex),
		Storage:   strings.TrimSpace(in.Storage),
		Price:     in.Price,
		Stock:     in.Stock,
		SKU:       strings.TrimSpace(in.SKU),
		ImageURL:  in.ImageURL,
	}
}

// AddVariant attaches a variant to a product. A product that still holds
// standalone stock must be drained first, or that stock would vanish from
// the sellable total.
func (s *CatalogService) AddVariant(ctx context.Context, req Requester, productID uint, in VariantInput) (*models.Variant, error) {
	if !req.CanManageCatalog() {
		return nil, ErrForbidden
	}
	if err := validateVariant("variant", in); err != nil {
		return nil, err
	}

	v := newVariant(in)
	v.ProductID = productID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.products.WithTx(tx)
		p, err := products.FindWithVariants(ctx, productID, database.SupportsRowLocks(tx))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ProductNotFoundError{ProductID: productID}
			}
			return persistence("load product", err)
		}
		if !p.HasVariants() && p.Stock > 0 {
			return invalid("variant", "product %d still has %d units of standalone stock", p.ID, p.Stock)
		}
		k := discriminator(v.ColorName, v.Storage)
		for _, existing := range p.Variants {
			if discriminator(existing.ColorName, existing.Storage) == k {
				return fmt.Errorf("variant %q of product %d: %w", v.Label(), productID, ErrDuplicateVariant)
			}
		}
		return products.CreateVariant(ctx, &v)
	})
	if err != nil {
		switch {
		case isDomainError(err):
			return nil, err
		case database.IsDuplicateKey(err):
			return nil, fmt.Errorf("variant %q of product %d: %w", v.Label(), productID, ErrDuplicateVariant)
		default:
			return nil, persistence("create variant", err)
		}
	}

	s.forget(ctx, productID)
	return &v, nil
}

// Restock adjusts a stock counter by delta, which may be negative for
// write-offs. variantID must be given exactly when the product has variants.
func (s *CatalogService) Restock(ctx context.Context, req Requester, productID uint, variantID *uint, delta int) (*StockLevel, error) {
	if !req.CanManageCatalog() {
		return nil, ErrForbidden
	}
	if delta == 0 {
		return nil, invalid("delta", "must not be zero")
	}

	var level StockLevel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.products.WithTx(tx)
		p, err := products.FindWithVariants(ctx, productID, database.SupportsRowLocks(tx))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ProductNotFoundError{ProductID: productID}
			}
			return persistence("load product", err)
		}

		level = StockLevel{Kind: KindProduct, ProductID: p.ID, ProductName: p.Name, Label: models.StandardLabel}
		available := p.Stock
		switch {
		case variantID == nil && p.HasVariants():
			return invalid("variant_id", "product %d has variants; choose one", p.ID)
		case variantID != nil:
			var v *models.Variant
			for i := range p.Variants {
				if p.Variants[i].ID == *variantID {
					v = &p.Variants[i]
				}
			}
			if v == nil {
				return &VariantNotFoundError{ProductID: p.ID, ProductName: p.Name, Label: fmt.Sprintf("#%d", *variantID)}
			}
			id := v.ID
			level.Kind, level.VariantID, level.Label = KindVariant, &id, v.Label()
			available = v.Stock
		}

		var ok bool
		if level.VariantID != nil {
			ok, err = products.AdjustVariantStock(ctx, p.ID, *level.VariantID, delta)
		} else {
			ok, err = products.AdjustProductStock(ctx, p.ID, delta)
		}
		if err != nil {
			return persistence("adjust stock", err)
		}
		if !ok {
			return &InsufficientStockError{
				ProductID: p.ID, VariantID: level.VariantID, ProductName: p.Name,
				Label: level.Label, Requested: -delta, Available: available,
			}
		}
		level.Remaining = available + delta
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, persistence("adjust stock", err)
	}

	s.forget(ctx, productID)
	logger.WithCtx(ctx).Info("stock adjusted", "product_id", productID, "label", level.Label, "delta", delta, "remaining", level.Remaining)
	event.FireAsync(EventStockChanged, StockChanged{Level: level, Delta: delta})
	return &level, nil
}

// Deactivate hides a product from customers and from new orders. Existing
// orders keep referencing it.
func (s *CatalogService) Deactivate(ctx context.Context, req Requester, productID uint) error {
	if !req.CanManageCatalog() {
		return ErrForbidden
	}
	ok, err := s.products.SetActive(ctx, productID, false)
	if err != nil {
		return persistence("deactivate product", err)
	}
	if !ok {
		return &ProductNotFoundError{ProductID: productID}
	}
	s.forget(ctx, productID)
	return nil
}

// ProductUpdate lists what UpdateProduct may change; nil fields are left
// alone. The SKU is fixed at creation.
type ProductUpdate struct {
	Name        *string
	Description *string
	Category    *string
	Price       *decimal.Decimal
}

// UpdateProduct edits catalog data. A new price applies to orders placed
// afterwards; placed orders keep the unit price they captured.
func (s *CatalogService) UpdateProduct(ctx context.Context, req Requester, productID uint, in ProductUpdate) (*models.Product, error) {
	if !req.CanManageCatalog() {
		return nil, ErrForbidden
	}
	fields := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, invalid("name", "must not be empty")
		}
		fields["name"] = name
	}
	if in.Description != nil {
		fields["description"] = *in.Description
	}
	if in.Category != nil {
		fields["category"] = strings.TrimSpace(*in.Category)
	}
	if in.Price != nil {
		if in.Price.IsNegative() {
			return nil, invalid("price", "must not be negative")
		}
		fields["price"] = *in.Price
	}
	if len(fields) == 0 {
		return nil, invalid("", "nothing to update")
	}

	var p *models.Product
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.products.WithTx(tx)
		if _, err := loadProduct(ctx, products, productID, database.SupportsRowLocks(tx)); err != nil {
			return err
		}
		if err := products.UpdateProduct(ctx, productID, fields); err != nil {
			return persistence("update product", err)
		}
		var err error
		p, err = loadProduct(ctx, products, productID, false)
		return err
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, persistence("update product", err)
	}

	s.forget(ctx, productID)
	logger.WithCtx(ctx).Info("product updated", "product_id", productID, "price", p.Price.StringFixed(2))
	return p, nil
}

// VariantUpdate lists what UpdateVariant may change. Stock moves through
// Restock only.
type VariantUpdate struct {
	ColorName *string
	ColorHex  *string
	Storage   *string
	Price     *decimal.Decimal
}

// UpdateVariant edits a variant's descriptor or price override. The new
// color and storage must still be unique within the product.
func (s *CatalogService) UpdateVariant(ctx context.Context, req Requester, variantID uint, in VariantUpdate) (*models.Variant, error) {
	if !req.CanManageCatalog() {
		return nil, ErrForbidden
	}
	if in.Price != nil && in.Price.IsNegative() {
		return nil, invalid("price", "must not be negative")
	}
	if in.ColorName == nil && in.ColorHex == nil && in.Storage == nil && in.Price == nil {
		return nil, invalid("", "nothing to update")
	}

	var (
		updated *models.Variant
		label   string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.products.WithTx(tx)
		v, err := loadVariant(ctx, products, variantID)
		if err != nil {
			return err
		}
		p, err := loadProduct(ctx, products, v.ProductID, database.SupportsRowLocks(tx))
		if err != nil {
			return err
		}

		color, storage := v.ColorName, v.Storage
		fields := map[string]interface{}{}
		if in.ColorName != nil {
			color = strings.TrimSpace(*in.ColorName)
			fields["color_name"] = color
		}
		if in.Storage != nil {
			storage = strings.TrimSpace(*in.Storage)
			fields["storage"] = storage
		}
		if in.ColorHex != nil {
			fields["color_hex"] = strings.TrimSpace(*in.ColorHex)
		}
		if in.Price != nil {
			fields["price"] = *in.Price
		}

		label = models.JoinLabel(color, storage)
		k := discriminator(color, storage)
		for _, other := range p.Variants {
			if other.ID != v.ID && discriminator(other.ColorName, other.Storage) == k {
				return fmt.Errorf("variant %q of product %d: %w", label, p.ID, ErrDuplicateVariant)
			}
		}

		if err := products.UpdateVariant(ctx, v.ID, fields); err != nil {
			return err
		}
		if updated, err = products.FindVariant(ctx, p.ID, v.ID); err != nil {
			return persistence("reload variant", err)
		}
		return nil
	})
	if err != nil {
		switch {
		case isDomainError(err):
			return nil, err
		case database.IsDuplicateKey(err):
			return nil, fmt.Errorf("variant %q: %w", label, ErrDuplicateVariant)
		default:
			return nil, persistence("update variant", err)
		}
	}

	s.forget(ctx, updated.ProductID)
	logger.WithCtx(ctx).Info("variant updated", "product_id", updated.ProductID, "variant_id", updated.ID, "label", updated.Label())
	return updated, nil
}

// DeleteVariant removes a variant and whatever stock it still held. Once a
// product's last variant is gone the product carries its own counter
// again, starting from zero.
func (s *CatalogService) DeleteVariant(ctx context.Context, req Requester, variantID uint) error {
	if !req.CanManageCatalog() {
		return ErrForbidden
	}

	var v *models.Variant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		products := s.products.WithTx(tx)
		var err error
		if v, err = loadVariant(ctx, products, variantID); err != nil {
			return err
		}
		if _, err := loadProduct(ctx, products, v.ProductID, database.SupportsRowLocks(tx)); err != nil {
			return err
		}
		if err := products.DeleteVariant(ctx, v.ID); err != nil {
			return persistence("delete variant", err)
		}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return err
		}
		return persistence("delete variant", err)
	}

	s.forget(ctx, v.ProductID)
	logger.WithCtx(ctx).Info("variant deleted", "product_id", v.ProductID, "variant_id", v.ID, "label", v.Label(), "written_off", v.Stock)
	return nil
}

// StockBySKU reports the stock behind a SKU. A product SKU lists every
// stock-bearing record of the product, a variant SKU only that variant.
// Inactive products are hidden from customers.
func (s *CatalogService) StockBySKU(ctx context.Context, req Requester, sku string) ([]StockLevel, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, invalid("sku", "is required")
	}

	var only *uint
	p, err := s.products.FindBySKU(ctx, sku)
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		v, verr := s.products.FindVariantBySKU(ctx, sku)
		if errors.Is(verr, gorm.ErrRecordNotFound) {
			return nil, &ProductNotFoundError{SKU: sku}
		}
		if verr != nil {
			return nil, persistence("load variant", verr)
		}
		if p, err = loadProduct(ctx, s.products, v.ProductID, false); err != nil {
			return nil, err
		}
		only = &v.ID
	default:
		return nil, persistence("load product", err)
	}

	if !p.Active && !req.CanManageCatalog() {
		return nil, &ProductNotFoundError{SKU: sku}
	}
	return stockLevels(p, only), nil
}

func stockLevels(p *models.Product, only *uint) []StockLevel {
	if !p.HasVariants() {
		return []StockLevel{{Kind: KindProduct, ProductID: p.ID, ProductName: p.Name, Label: models.StandardLabel, Remaining: p.Stock}}
	}
	levels := make([]StockLevel, 0, len(p.Variants))
	for _, v := range p.Variants {
		if only != nil && v.ID != *only {
			continue
		}
		id := v.ID
		levels = append(levels, StockLevel{Kind: KindVariant, ProductID: p.ID, VariantID: &id, ProductName: p.Name, Label: v.Label(), Remaining: v.Stock})
	}
	return levels
}

func loadProduct(ctx context.Context, products *repositories.ProductRepository, id uint, lock bool) (*models.Product, error) {
	p, err := products.FindWithVariants(ctx, id, lock)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ProductNotFoundError{ProductID: id}
		}
		return nil, persistence("load product", err)
	}
	return p, nil
}

func loadVariant(ctx context.Context, products *repositories.ProductRepository, id uint) (*models.Variant, error) {
	v, err := products.FindVariantByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &VariantNotFoundError{Label: fmt.Sprintf("#%d", id)}
		}
		return nil, persistence("load variant", err)
	}
	return v, nil
}

// GetProduct reads through the redis cache. Inactive products are only
// visible to catalog managers.
func (s *CatalogService) GetProduct(ctx context.Context, req Requester, productID uint) (*models.Product, error) {
	var p models.Product
	err := cache.Remember(ctx, ProductCacheKey(productID), s.cacheTTL, &p, func() (interface{}, error) {
		return s.products.FindWithVariants(ctx, productID, false)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ProductNotFoundError{ProductID: productID}
		}
		return nil, persistence("load product", err)
	}
	if !p.Active && !req.CanManageCatalog() {
		return nil, &ProductNotFoundError{ProductID: productID}
	}
	return &p, nil
}

// ListProducts pages through the catalog. Customers only ever see active
// products whatever the filter says.
func (s *CatalogService) ListProducts(ctx context.Context, req Requester, f repositories.ProductFilter) ([]models.Product, orm.Pagination, error) {
	if !req.CanManageCatalog() {
		f.ActiveOnly = true
	}
	products, page, err := s.products.List(ctx, f)
	if err != nil {
		return nil, orm.Pagination{}, persistence("list products", err)
	}
	return products, page, nil
}

// LowStock lists every stock-bearing record of an active product that is at
// or below threshold. Products with variants report their variants only.
func (s *CatalogService) LowStock(ctx context.Context, req Requester, threshold int) ([]StockLevel, error) {
	if !req.CanManageCatalog() {
		return nil, ErrForbidden
	}
	if threshold < 0 {
		return nil, invalid("threshold", "must not be negative")
	}
	products, err := s.products.LowStock(ctx, threshold)
	if err != nil {
		return nil, persistence("list low stock", err)
	}

	levels := []StockLevel{}
	for _, p := range products {
		if !p.HasVariants() {
			if p.Stock <= threshold {
				levels = append(levels, StockLevel{Kind: KindProduct, ProductID: p.ID, ProductName: p.Name, Label: models.StandardLabel, Remaining: p.Stock})
			}
			continue
		}
		for _, v := range p.Variants {
			if v.Stock > threshold {
				continue
			}
			id := v.ID
			levels = append(levels, StockLevel{Kind: KindVariant, ProductID: p.ID, VariantID: &id, ProductName: p.Name, Label: v.Label(), Remaining: v.Stock})
		}
	}
	return levels, nil
}

var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// UploadImage stores an image on the configured disk and points the
// product at its public URL.
func (s *CatalogService) UploadImage(ctx context.Context, req Requester, productID uint, contentType string, r io.Reader) (string, error) {
	if !req.CanManageCatalog() {
		return "", ErrForbidden
	}
	ext, ok := imageTypes[contentType]
	if !ok {
		return "", invalid("image", "unsupported content type %q", contentType)
	}
	if s.disk == nil {
		return "", persistence("upload image", errors.New("no storage disk configured"))
	}
	if _, err := s.products.FindWithVariants(ctx, productID, false); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", &ProductNotFoundError{ProductID: productID}
		}
		return "", persistence("load product", err)
	}

	key := path.Join("products", fmt.Sprint(productID), uuid.NewString()+ext)
	if err := s.disk.Put(ctx, key, r, contentType); err != nil {
		return "", persistence("upload image", err)
	}
	url := s.disk.URL(key)
	if _, err := s.products.SetImage(ctx, productID, url); err != nil {
		return "", persistence("set product image", err)
	}

	s.forget(ctx, productID)
	return url, nil
}

func (s *CatalogService) forget(ctx context.Context, productID uint) {
	if err := cache.Forget(ctx, ProductCacheKey(productID)); err != nil {
		logger.WithCtx(ctx).Warn("product cache invalidation failed", "product_id", productID, "error", err)
	}
}
