package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/app/resources"
	"github.com/shashiranjanraj/kashvi-shop/app/services"
	"github.com/shashiranjanraj/kashvi-shop/pkg/resource"
	"github.com/shashiranjanraj/kashvi-shop/pkg/response"
)

// IdempotencyHeader lets clients retry a placement safely.
const IdempotencyHeader = "Idempotency-Key"

type OrderController struct {
	orders *services.OrderService
}

func NewOrderController(orders *services.OrderService) *OrderController {
	return &OrderController{orders: orders}
}

type orderLineRequest struct {
	ProductID uint             `json:"product_id" validate:"required"`
	Variant   string           `json:"variant"    validate:"max=200"`
	Color     string           `json:"color"      validate:"max=100"`
	Storage   string           `json:"storage"    validate:"max=50"`
	Quantity  int              `json:"quantity"   validate:"gte=1"`
	UnitPrice *decimal.Decimal `json:"unit_price" validate:"nullable,gte=0"`
}

type placeOrderRequest struct {
	ShippingMethod  string             `json:"shipping_method"  validate:"required,max=100"`
	ShippingAddress string             `json:"shipping_address" validate:"required,max=1000"`
	Items           []orderLineRequest `json:"items"            validate:"required,dive"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// Place handles POST /api/orders.
func (c *OrderController) Place(w http.ResponseWriter, r *http.Request) {
	var body placeOrderRequest
	if !decode(w, r, &body) {
		return
	}

	in := services.PlaceOrderInput{
		Shipping:       services.Shipping{Method: body.ShippingMethod, Address: body.ShippingAddress},
		Items:          make([]services.LineItem, 0, len(body.Items)),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	}
	for _, l := range body.Items {
		in.Items = append(in.Items, services.LineItem{
			ProductID:  l.ProductID,
			Descriptor: services.Descriptor{Color: l.Color, Storage: l.Storage, Label: l.Variant},
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice,
		})
	}

	order, err := c.orders.PlaceOrder(r.Context(), requester(r), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	resource.New(resources.Order{}, order).RespondCreated(w)
}

// Index handles GET /api/orders.
func (c *OrderController) Index(w http.ResponseWriter, r *http.Request) {
	orders, err := c.orders.ListOrders(r.Context(), requester(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	resource.CollectionOf(resources.Order{}, orders).Respond(w)
}

// Show handles GET /api/orders/{id}.
func (c *OrderController) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	order, err := c.orders.GetOrder(r.Context(), requester(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	resource.New(resources.Order{}, order).Respond(w)
}

// UpdateStatus handles PUT /api/orders/{id}/status.
func (c *OrderController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var body updateStatusRequest
	if !decode(w, r, &body) {
		return
	}
	status, valid := models.ParseOrderStatus(body.Status)
	if !valid {
		response.ValidationError(w, map[string]string{"status": "The selected status is invalid."})
		return
	}

	order, err := c.orders.UpdateStatus(r.Context(), requester(r), id, status)
	if err != nil {
		fail(w, r, err)
		return
	}
	resource.New(resources.Order{}, order).Respond(w)
}
