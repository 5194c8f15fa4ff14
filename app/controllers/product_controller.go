package controllers

import (
	"bufio"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/shashiranjanraj/kashvi-shop/app/repositories"
	"github.com/shashiranjanraj/kashvi-shop/app/resources"
	"github.com/shashiranjanraj/kashvi-shop/app/services"
	"github.com/shashiranjanraj/kashvi-shop/config"
	"github.com/shashiranjanraj/kashvi-shop/pkg/resource"
	"github.com/shashiranjanraj/kashvi-shop/pkg/response"
)

const maxImageBytes = 5 << 20

type ProductController struct {
	catalog *services.CatalogService
}

func NewProductController(catalog *services.CatalogService) *ProductController {
	return &ProductController{catalog: catalog}
}

type variantRequest struct {
	ColorName string           `json:"color_name" validate:"max=100"`
	ColorHex  string           `json:"color_hex"  validate:"nullable,regex=^#[0-9A-Fa-f]{6}$"`
	Storage   string           `json:"storage"    validate:"max=50"`
	Price     *decimal.Decimal `json:"price"      validate:"nullable,gte=0"`
	Stock     int              `json:"stock"      validate:"gte=0"`
	SKU       string           `json:"sku"        validate:"nullable,alpha_dash,max=100"`
	ImageURL  string           `json:"image_url"  validate:"nullable,url,max=512"`
}

func (v variantRequest) input() services.VariantInput {
	return services.VariantInput{
		ColorName: v.ColorName, ColorHex: v.ColorHex, Storage: v.Storage,
		Price: v.Price, Stock: v.Stock, SKU: v.SKU, ImageURL: v.ImageURL,
	}
}

type createProductRequest struct {
	SKU         string           `json:"sku"         validate:"nullable,alpha_dash,max=100"`
	Name        string           `json:"name"        validate:"required,max=255"`
	Description string           `json:"description" validate:"max=5000"`
	Category    string           `json:"category"    validate:"max=100"`
	ImageURL    string           `json:"image_url"   validate:"nullable,url,max=512"`
	Price       *decimal.Decimal `json:"price"       validate:"required,gte=0"`
	Stock       int              `json:"stock"       validate:"gte=0"`
	Variants    []variantRequest `json:"variants"    validate:"dive"`
}

// updateProductRequest has no sku field, so a body carrying one is
// rejected as an unknown field.
type updateProductRequest struct {
	Name        *string          `json:"name"        validate:"nullable,max=255"`
	Description *string          `json:"description" validate:"nullable,max=5000"`
	Category    *string          `json:"category"    validate:"nullable,max=100"`
	Price       *decimal.Decimal `json:"price"       validate:"nullable,gte=0"`
}

type updateVariantRequest struct {
	ColorName *string          `json:"color_name" validate:"nullable,max=100"`
	ColorHex  *string          `json:"color_hex"  validate:"nullable,regex=^#[0-9A-Fa-f]{6}$"`
	Storage   *string          `json:"storage"    validate:"nullable,max=50"`
	Price     *decimal.Decimal `json:"price"      validate:"nullable,gte=0"`
}

type restockRequest struct {
	VariantID *uint `json:"variant_id"`
	Delta     int   `json:"delta" validate:"required"`
}

// Index handles GET /api/products?search=&category=&page=&limit=.
func (c *ProductController) Index(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit > 100 {
		limit = 100
	}

	products, pagination, err := c.catalog.ListProducts(r.Context(), requester(r), repositories.ProductFilter{
		Search:     q.Get("search"),
		Category:   q.Get("category"),
		ActiveOnly: q.Get("active") == "1" || q.Get("active") == "true",
		Page:       page,
		Limit:      limit,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	resource.CollectionOf(resources.Product{}, products).WithPagination(pagination).Respond(w)
}

// Show handles GET /api/products/{id}.
func (c *ProductController) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	p, err := c.catalog.GetProduct(r.Context(), requester(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	resource.New(resources.Product{}, p).Respond(w)
}

// Store handles POST /api/products.
func (c *ProductController) Store(w http.ResponseWriter, r *http.Request) {
	var body createProductRequest
	if !decode(w, r, &body) {
		return
	}

	in := services.ProductInput{
		SKU: body.SKU, Name: body.Name, Description: body.Description, Category: body.Category,
		ImageURL: body.ImageURL, Price: *body.Price, Stock: body.Stock,
	}
	for _, v := range body.Variants {
		in.Variants = append(in.Variants, v.input())
	}

	p, err := c.catalog.CreateProduct(r.Context(), requester(r), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	resource.New(resources.Product{}, p).RespondCreated(w)
}

// Update handles PUT /api/products/{id}.
func (c *ProductController) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var body updateProductRequest
	if !decode(w, r, &body) {
		return
	}

	p, err := c.catalog.UpdateProduct(r.Context(), requester(r), id, services.ProductUpdate{
		Name: body.Name, Description: body.Description, Category: body.Category, Price: body.Price,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	resource.New(resources.Product{}, p).Respond(w)
}

// AddVariant handles POST /api/products/{id}/variants.
func (c *ProductController) AddVariant(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var body variantRequest
	if !decode(w, r, &body) {
		return
	}

	v, err := c.catalog.AddVariant(r.Context(), requester(r), id, body.input())
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := c.catalog.GetProduct(r.Context(), requester(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	resource.New(resources.Variant(p), v).RespondCreated(w)
}

// UpdateVariant handles PUT /api/variants/{id}.
func (c *ProductController) UpdateVariant(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var body updateVariantRequest
	if !decode(w, r, &body) {
		return
	}

	v, err := c.catalog.UpdateVariant(r.Context(), requester(r), id, services.VariantUpdate{
		ColorName: body.ColorName, ColorHex: body.ColorHex, Storage: body.Storage, Price: body.Price,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := c.catalog.GetProduct(r.Context(), requester(r), v.ProductID)
	if err != nil {
		fail(w, r, err)
		return
	}
	resource.New(resources.Variant(p), v).Respond(w)
}

// DestroyVariant handles DELETE /api/variants/{id}.
func (c *ProductController) DestroyVariant(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := c.catalog.DeleteVariant(r.Context(), requester(r), id); err != nil {
		fail(w, r, err)
		return
	}
	response.Success(w, map[string]interface{}{"id": id, "deleted": true})
}

// Stock handles GET /api/inventory/{sku}.
func (c *ProductController) Stock(w http.ResponseWriter, r *http.Request) {
	levels, err := c.catalog.StockBySKU(r.Context(), requester(r), chi.URLParam(r, "sku"))
	if err != nil {
		fail(w, r, err)
		return
	}
	resource.CollectionOf(resources.StockLevel{}, levels).Respond(w)
}

// Restock handles POST /api/products/{id}/stock.
func (c *ProductController) Restock(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var body restockRequest
	if !decode(w, r, &body) {
		return
	}

	level, err := c.catalog.Restock(r.Context(), requester(r), id, body.VariantID, body.Delta)
	if err != nil {
		fail(w, r, err)
		return
	}
	resource.New(resources.StockLevel{}, level).Respond(w)
}

// LowStock handles GET /api/products/low-stock?threshold=. The threshold
// defaults to the configured alert level.
func (c *ProductController) LowStock(w http.ResponseWriter, r *http.Request) {
	threshold := config.LowStockThreshold()
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fail(w, r, &services.InvalidRequestError{Field: "threshold", Reason: "must be an integer"})
			return
		}
		threshold = n
	}

	levels, err := c.catalog.LowStock(r.Context(), requester(r), threshold)
	if err != nil {
		fail(w, r, err)
		return
	}
	resource.CollectionOf(resources.StockLevel{}, levels).Respond(w)
}

// Destroy handles DELETE /api/products/{id}. Products are deactivated, not
// deleted, so past orders keep their references.
func (c *ProductController) Destroy(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := c.catalog.Deactivate(r.Context(), requester(r), id); err != nil {
		fail(w, r, err)
		return
	}
	response.Success(w, map[string]interface{}{"id": id, "active": false})
}

// UploadImage handles POST /api/products/{id}/image as multipart form
// data with an "image" file field.
func (c *ProductController) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+(64<<10))
	file, _, err := r.FormFile("image")
	if err != nil {
		response.ValidationError(w, map[string]string{"image": "The image file is required (max 5 MB)."})
		return
	}
	defer file.Close()

	// Sniff rather than trust the client's part header.
	br := bufio.NewReaderSize(file, 512)
	head, _ := br.Peek(512)
	contentType := strings.Split(http.DetectContentType(head), ";")[0]

	url, err := c.catalog.UploadImage(r.Context(), requester(r), id, contentType, br)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.Created(w, map[string]string{"image_url": url})
}
