// Package schema exposes orders and the catalog as a GraphQL schema. Field
// names and shapes match the REST resources.
package schema

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/graphql-go/graphql"
	"github.com/shopspring/decimal"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/app/repositories"
	"github.com/shashiranjanraj/kashvi-shop/app/resources"
	"github.com/shashiranjanraj/kashvi-shop/app/services"
	gql "github.com/shashiranjanraj/kashvi-shop/pkg/graphql"
	"github.com/shashiranjanraj/kashvi-shop/pkg/logger"
	"github.com/shashiranjanraj/kashvi-shop/pkg/middleware"
	"github.com/shashiranjanraj/kashvi-shop/pkg/resource"
)

var errUnauthenticated = errors.New("authentication required")

var (
	orderItemType = graphql.NewObject(graphql.ObjectConfig{
		Name: "OrderItem",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.Int},
			"product_id":   &graphql.Field{Type: graphql.Int},
			"variant_id":   &graphql.Field{Type: graphql.Int},
			"product_name": &graphql.Field{Type: graphql.String},
			"variant_name": &graphql.Field{Type: graphql.String},
			"quantity":     &graphql.Field{Type: graphql.Int},
			"unit_price":   &graphql.Field{Type: graphql.String},
			"line_total":   &graphql.Field{Type: graphql.String},
		},
	})

	orderType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Order",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.Int},
			"order_number":     &graphql.Field{Type: graphql.String},
			"user_id":          &graphql.Field{Type: graphql.Int},
			"status":           &graphql.Field{Type: graphql.String},
			"shipping_method":  &graphql.Field{Type: graphql.String},
			"shipping_address": &graphql.Field{Type: graphql.String},
			"total_amount":     &graphql.Field{Type: graphql.String},
			"created_at":       &graphql.Field{Type: graphql.String},
			"items":            &graphql.Field{Type: graphql.NewList(orderItemType)},
		},
	})

	variantType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Variant",
		Fields: graphql.Fields{
			"id":         &graphql.Field{Type: graphql.Int},
			"label":      &graphql.Field{Type: graphql.String},
			"color_name": &graphql.Field{Type: graphql.String},
			"color_hex":  &graphql.Field{Type: graphql.String},
			"storage":    &graphql.Field{Type: graphql.String},
			"price":      &graphql.Field{Type: graphql.String},
			"stock":      &graphql.Field{Type: graphql.Int},
			"sku":        &graphql.Field{Type: graphql.String},
			"image_url":  &graphql.Field{Type: graphql.String},
		},
	})

	productType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Product",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.Int},
			"sku":          &graphql.Field{Type: graphql.String},
			"name":         &graphql.Field{Type: graphql.String},
			"description":  &graphql.Field{Type: graphql.String},
			"category":     &graphql.Field{Type: graphql.String},
			"image_url":    &graphql.Field{Type: graphql.String},
			"price":        &graphql.Field{Type: graphql.String},
			"stock":        &graphql.Field{Type: graphql.Int},
			"active":       &graphql.Field{Type: graphql.Boolean},
			"has_variants": &graphql.Field{Type: graphql.Boolean},
			"variants":     &graphql.Field{Type: graphql.NewList(variantType)},
		},
	})

	lineInputType = graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "OrderLineInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"product_id": &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Int)},
			"variant":    &graphql.InputObjectFieldConfig{Type: graphql.String},
			"color":      &graphql.InputObjectFieldConfig{Type: graphql.String},
			"storage":    &graphql.InputObjectFieldConfig{Type: graphql.String},
			"quantity":   &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.Int)},
			"unit_price": &graphql.InputObjectFieldConfig{Type: graphql.String},
		},
	})
)

// New builds the schema over the order and catalog services.
func New(orders *services.OrderService, catalog *services.CatalogService) (graphql.Schema, error) {
	r := &resolver{orders: orders, catalog: catalog}

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"orders": &graphql.Field{
				Type:    graphql.NewList(orderType),
				Resolve: r.listOrders,
			},
			"order": &graphql.Field{
				Type:    orderType,
				Args:    graphql.FieldConfigArgument{"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)}},
				Resolve: r.order,
			},
			"product": &graphql.Field{
				Type:    productType,
				Args:    graphql.FieldConfigArgument{"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)}},
				Resolve: r.product,
			},
			"products": &graphql.Field{
				Type: graphql.NewList(productType),
				Args: graphql.FieldConfigArgument{
					"search":   &graphql.ArgumentConfig{Type: graphql.String},
					"category": &graphql.ArgumentConfig{Type: graphql.String},
					"page":     &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 1},
					"limit":    &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: r.listProducts,
			},
		},
	})

	mutation := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"placeOrder": &graphql.Field{
				Type: orderType,
				Args: graphql.FieldConfigArgument{
					"shipping_method":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"shipping_address": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"items":            &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(lineInputType)))},
					"idempotency_key":  &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: r.placeOrder,
			},
			"updateOrderStatus": &graphql.Field{
				Type: orderType,
				Args: graphql.FieldConfigArgument{
					"id":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"status": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.updateStatus,
			},
		},
	})

	return gql.NewSchema(query, mutation)
}

type resolver struct {
	orders  *services.OrderService
	catalog *services.CatalogService
}

func requester(ctx context.Context) services.Requester {
	c, ok := middleware.ClaimsFromCtx(ctx)
	if !ok {
		return services.Requester{}
	}
	return services.NewRequester(c.UserID, c.Role)
}

func authed(ctx context.Context) (services.Requester, error) {
	req := requester(ctx)
	if !req.Authenticated() {
		return req, errUnauthenticated
	}
	return req, nil
}

func (r *resolver) listOrders(p graphql.ResolveParams) (interface{}, error) {
	req, err := authed(p.Context)
	if err != nil {
		return nil, err
	}
	list, err := r.orders.ListOrders(p.Context, req)
	if err != nil {
		return nil, public(p.Context, err)
	}
	return plain(resource.CollectionOf(resources.Order{}, list))
}

func (r *resolver) order(p graphql.ResolveParams) (interface{}, error) {
	req, err := authed(p.Context)
	if err != nil {
		return nil, err
	}
	o, err := r.orders.GetOrder(p.Context, req, uint(p.Args["id"].(int)))
	if err != nil {
		return nil, public(p.Context, err)
	}
	return plain(resource.New(resources.Order{}, o))
}

func (r *resolver) product(p graphql.ResolveParams) (interface{}, error) {
	pr, err := r.catalog.GetProduct(p.Context, requester(p.Context), uint(p.Args["id"].(int)))
	if err != nil {
		return nil, public(p.Context, err)
	}
	return plain(resource.New(resources.Product{}, pr))
}

func (r *resolver) listProducts(p graphql.ResolveParams) (interface{}, error) {
	f := repositories.ProductFilter{}
	f.Search, _ = p.Args["search"].(string)
	f.Category, _ = p.Args["category"].(string)
	f.Page, _ = p.Args["page"].(int)
	f.Limit, _ = p.Args["limit"].(int)
	if f.Limit > 100 {
		f.Limit = 100
	}

	list, _, err := r.catalog.ListProducts(p.Context, requester(p.Context), f)
	if err != nil {
		return nil, public(p.Context, err)
	}
	return plain(resource.CollectionOf(resources.Product{}, list))
}

func (r *resolver) placeOrder(p graphql.ResolveParams) (interface{}, error) {
	req, err := authed(p.Context)
	if err != nil {
		return nil, err
	}

	in := services.PlaceOrderInput{
		Shipping: services.Shipping{
			Method:  p.Args["shipping_method"].(string),
			Address: p.Args["shipping_address"].(string),
		},
	}
	in.IdempotencyKey, _ = p.Args["idempotency_key"].(string)

	raw, _ := p.Args["items"].([]interface{})
	for _, item := range raw {
		m, _ := item.(map[string]interface{})
		line, err := lineItem(m)
		if err != nil {
			return nil, err
		}
		in.Items = append(in.Items, line)
	}

	o, err := r.orders.PlaceOrder(p.Context, req, in)
	if err != nil {
		return nil, public(p.Context, err)
	}
	return plain(resource.New(resources.Order{}, o))
}

func lineItem(m map[string]interface{}) (services.LineItem, error) {
	li := services.LineItem{}
	id, _ := m["product_id"].(int)
	li.ProductID = uint(id)
	li.Quantity, _ = m["quantity"].(int)
	li.Descriptor.Label, _ = m["variant"].(string)
	li.Descriptor.Color, _ = m["color"].(string)
	li.Descriptor.Storage, _ = m["storage"].(string)

	if s, ok := m["unit_price"].(string); ok && s != "" {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return li, errors.New("unit_price must be a decimal string")
		}
		li.UnitPrice = &d
	}
	return li, nil
}

func (r *resolver) updateStatus(p graphql.ResolveParams) (interface{}, error) {
	req, err := authed(p.Context)
	if err != nil {
		return nil, err
	}
	status, ok := models.ParseOrderStatus(p.Args["status"].(string))
	if !ok {
		return nil, errors.New("unknown order status")
	}
	o, err := r.orders.UpdateStatus(p.Context, req, uint(p.Args["id"].(int)), status)
	if err != nil {
		return nil, public(p.Context, err)
	}
	return plain(resource.New(resources.Order{}, o))
}

// plain turns a resource into the map and slice values the default field
// resolver understands.
func plain(v json.Marshaler) (interface{}, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// public hides storage failures from clients, like the REST handlers do.
func public(ctx context.Context, err error) error {
	if services.IsRetryable(err) {
		logger.WithCtx(ctx).Error("graphql resolver failed", "error", err)
		return errors.New("temporarily unavailable, please retry")
	}
	return err
}
