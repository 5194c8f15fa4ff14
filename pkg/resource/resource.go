// Package resource shapes models into API output.
//
// Define a Transformer to control exactly what JSON a model turns into:
//
//	type OrderResource struct{}
//	func (OrderResource) ToArray(v interface{}) resource.Map {
//	    o := v.(models.Order)
//	    return resource.Map{"id": o.ID, "status": o.Status}
//	}
//
// Respond:
//
//	resource.New(OrderResource{}, order).Respond(w)
//	resource.CollectionOf(OrderResource{}, orders).Respond(w)
package resource

import (
	"encoding/json"
	"net/http"
	"reflect"

	"github.com/shashiranjanraj/kashvi-shop/pkg/orm"
	"github.com/shashiranjanraj/kashvi-shop/pkg/response"
)

// Map is a convenient alias for the output of ToArray.
type Map = map[string]interface{}

// Transformer converts one model value into a Map. Pointers are
// dereferenced before ToArray is called.
type Transformer interface {
	ToArray(v interface{}) Map
}

// ------------------- Single resource -------------------

// Resource wraps a single model with its transformer.
type Resource struct {
	transformer Transformer
	data        interface{}
}

// New creates a Resource for a single model instance.
func New(t Transformer, data interface{}) *Resource {
	return &Resource{transformer: t, data: data}
}

// Array returns the transformed model.
func (r *Resource) Array() Map { return r.transformer.ToArray(deref(r.data)) }

// MarshalJSON lets a Resource be nested inside other output.
func (r *Resource) MarshalJSON() ([]byte, error) { return json.Marshal(r.Array()) }

// Respond writes the resource in the standard envelope with status 200.
func (r *Resource) Respond(w http.ResponseWriter) { response.Success(w, r.Array()) }

// RespondCreated writes the resource with status 201.
func (r *Resource) RespondCreated(w http.ResponseWriter) { response.Created(w, r.Array()) }

// ------------------- Collection resource -------------------

// Collection wraps a slice of models with a transformer.
type Collection struct {
	transformer Transformer
	items       interface{}
	pagination  *orm.Pagination
}

// CollectionOf creates a Collection from a slice such as []models.Order.
func CollectionOf(t Transformer, items interface{}) *Collection {
	return &Collection{transformer: t, items: items}
}

// WithPagination attaches pagination metadata.
func (c *Collection) WithPagination(p orm.Pagination) *Collection {
	c.pagination = &p
	return c
}

// Array transforms every element. A nil or non-slice value yields an empty list.
func (c *Collection) Array() []Map {
	out := []Map{}
	rv := reflect.ValueOf(c.items)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return out
	}
	for i := 0; i < rv.Len(); i++ {
		out = append(out, c.transformer.ToArray(deref(rv.Index(i).Interface())))
	}
	return out
}

func (c *Collection) MarshalJSON() ([]byte, error) { return json.Marshal(c.Array()) }

// Respond writes the collection, with pagination when attached.
func (c *Collection) Respond(w http.ResponseWriter) {
	if c.pagination != nil {
		response.Paginated(w, c.Array(), *c.pagination)
		return
	}
	response.Success(w, c.Array())
}

func deref(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr && !rv.IsNil() {
		return rv.Elem().Interface()
	}
	return v
}
