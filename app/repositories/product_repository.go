package repositories

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/pkg/orm"
)

// ProductFilter narrows ListProducts.
type ProductFilter struct {
	Search     string
	Category   string
	ActiveOnly bool
	Page       int
	Limit      int
}

// ProductRepository handles database operations for products and variants.
type ProductRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *ProductRepository) WithTx(tx *gorm.DB) *ProductRepository {
	return &ProductRepository{db: tx}
}

func (r *ProductRepository) q(ctx context.Context) *orm.Query {
	return orm.On(r.db).WithContext(ctx)
}

// FindWithVariants loads a product and its variants. With lock set the
// product and variant rows are read FOR UPDATE.
func (r *ProductRepository) FindWithVariants(ctx context.Context, id uint, lock bool) (*models.Product, error) {
	var p models.Product
	q := r.q(ctx)
	if lock {
		q = q.LockForUpdate().Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Clauses(clause.Locking{Strength: "UPDATE"}).Order("id")
		})
	} else {
		q = q.Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
	}
	if err := q.Where("id = ?", id).First(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindVariant loads one variant of a product.
func (r *ProductRepository) FindVariant(ctx context.Context, productID, variantID uint) (*models.Variant, error) {
	var v models.Variant
	if err := r.q(ctx).Where("id = ? AND product_id = ?", variantID, productID).First(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// FindVariantByID loads a variant when only its id is known.
func (r *ProductRepository) FindVariantByID(ctx context.Context, id uint) (*models.Variant, error) {
	var v models.Variant
	if err := r.q(ctx).Where("id = ?", id).First(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

// FindBySKU matches the stored, upper-cased product SKU.
func (r *ProductRepository) FindBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var p models.Product
	err := r.q(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("sku = ?", strings.ToUpper(sku)).
		First(&p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindVariantBySKU matches variant SKUs case-insensitively; they are stored
// as given.
func (r *ProductRepository) FindVariantBySKU(ctx context.Context, sku string) (*models.Variant, error) {
	var v models.Variant
	if err := r.q(ctx).Where("UPPER(sku) = ?", strings.ToUpper(sku)).Order("id").First(&v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *ProductRepository) SKUExists(ctx context.Context, sku string) (bool, error) {
	n, err := r.q(ctx).Model(&models.Product{}).Where("sku = ?", sku).Count()
	return n > 0, err
}

func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	return r.q(ctx).Create(p)
}

func (r *ProductRepository) CreateVariant(ctx context.Context, v *models.Variant) error {
	return r.q(ctx).Create(v)
}

// DecrementProductStock removes qty units only if that many are available.
// It reports false when the guard failed and nothing changed.
func (r *ProductRepository) DecrementProductStock(ctx context.Context, id uint, qty int) (bool, error) {
	n, err := r.q(ctx).Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	return n == 1, err
}

// DecrementVariantStock is DecrementProductStock for a variant.
func (r *ProductRepository) DecrementVariantStock(ctx context.Context, id uint, qty int) (bool, error) {
	n, err := r.q(ctx).Model(&models.Variant{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	return n == 1, err
}

// AdjustProductStock adds delta (which may be negative) unless the result
// would drop below zero.
func (r *ProductRepository) AdjustProductStock(ctx context.Context, id uint, delta int) (bool, error) {
	n, err := r.q(ctx).Model(&models.Product{}).
		Where("id = ? AND stock + ? >= 0", id, delta).
		UpdateColumn("stock", gorm.Expr("stock + ?", delta))
	return n == 1, err
}

func (r *ProductRepository) AdjustVariantStock(ctx context.Context, productID, variantID uint, delta int) (bool, error) {
	n, err := r.q(ctx).Model(&models.Variant{}).
		Where("id = ? AND product_id = ? AND stock + ? >= 0", variantID, productID, delta).
		UpdateColumn("stock", gorm.Expr("stock + ?", delta))
	return n == 1, err
}

// UpdateProduct writes the given columns. Callers load the row first, so
// a missing product is already ruled out.
func (r *ProductRepository) UpdateProduct(ctx context.Context, id uint, fields map[string]interface{}) error {
	_, err := r.q(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(fields)
	return err
}

func (r *ProductRepository) UpdateVariant(ctx context.Context, id uint, fields map[string]interface{}) error {
	_, err := r.q(ctx).Model(&models.Variant{}).Where("id = ?", id).Updates(fields)
	return err
}

// DeleteVariant removes the row outright. Order lines keep their copied
// product and variant names.
func (r *ProductRepository) DeleteVariant(ctx context.Context, id uint) error {
	return r.q(ctx).Where("id = ?", id).Delete(&models.Variant{})
}

// SetActive reports false when the product does not exist.
func (r *ProductRepository) SetActive(ctx context.Context, id uint, active bool) (bool, error) {
	n, err := r.q(ctx).Model(&models.Product{}).Where("id = ?", id).
		Updates(map[string]interface{}{"active": active})
	return n == 1, err
}

func (r *ProductRepository) SetImage(ctx context.Context, id uint, url string) (bool, error) {
	n, err := r.q(ctx).Model(&models.Product{}).Where("id = ?", id).
		Updates(map[string]interface{}{"image_url": url})
	return n == 1, err
}

// List returns a page of products with their variants, newest first.
func (r *ProductRepository) List(ctx context.Context, f ProductFilter) ([]models.Product, orm.Pagination, error) {
	q := r.q(ctx).Model(&models.Product{})
	if f.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if f.Category != "" {
		q = q.Where("LOWER(category) = ?", strings.ToLower(f.Category))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(sku) LIKE ?", like, like)
	}

	var products []models.Product
	page, err := q.Preload("Variants").Order("id DESC").GetWithPagination(&products, f.Page, f.Limit)
	return products, page, err
}

// LowStock returns active products whose own counter or any variant's
// counter is at or below threshold, with all of their variants.
func (r *ProductRepository) LowStock(ctx context.Context, threshold int) ([]models.Product, error) {
	low := r.db.Model(&models.Variant{}).Select("product_id").Where("stock <= ?", threshold)
	var products []models.Product
	err := r.q(ctx).
		Where("active = ?", true).
		Where("stock <= ? OR id IN (?)", threshold, low).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("id").
		Get(&products)
	return products, err
}
