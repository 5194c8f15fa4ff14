// Package response writes the JSON envelope every endpoint answers with:
//
//	{"status":409,"code":"insufficient_stock","message":"not enough stock for ..."}
//	{"status":200,"data":{...}}
//
// Error responses always carry a machine-readable code. Callers that have a
// more specific one than the status implies use Fail.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/shashiranjanraj/kashvi-shop/pkg/orm"
)

type envelope struct {
	Status  int         `json:"status"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

var statusCodes = map[int]string{
	http.StatusBadRequest:            "bad_request",
	http.StatusUnauthorized:          "unauthenticated",
	http.StatusForbidden:             "forbidden",
	http.StatusNotFound:              "not_found",
	http.StatusMethodNotAllowed:      "method_not_allowed",
	http.StatusConflict:              "conflict",
	http.StatusRequestEntityTooLarge: "too_large",
	http.StatusUnprocessableEntity:   "validation_failed",
	http.StatusTooManyRequests:       "rate_limited",
	http.StatusInternalServerError:   "internal_error",
	http.StatusServiceUnavailable:    "unavailable",
}

// CodeFor is the default error code for an HTTP status.
func CodeFor(status int) string {
	if c, ok := statusCodes[status]; ok {
		return c
	}
	if status >= 500 {
		return "internal_error"
	}
	return "error"
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

func Success(w http.ResponseWriter, data interface{}) {
	write(w, http.StatusOK, envelope{Status: http.StatusOK, Data: data})
}

func Created(w http.ResponseWriter, data interface{}) {
	write(w, http.StatusCreated, envelope{Status: http.StatusCreated, Data: data})
}

// Error sends an error response coded after its status.
func Error(w http.ResponseWriter, status int, message string) {
	Fail(w, status, CodeFor(status), message)
}

// Fail sends an error response with an explicit code such as
// "insufficient_stock" or "variant_not_found".
func Fail(w http.ResponseWriter, status int, code, message string) {
	write(w, status, envelope{Status: status, Code: code, Message: message})
}

// ValidationError sends a 422 keyed by field path ("items[0].quantity").
func ValidationError(w http.ResponseWriter, errs map[string]string) {
	write(w, http.StatusUnprocessableEntity, envelope{
		Status:  http.StatusUnprocessableEntity,
		Code:    CodeFor(http.StatusUnprocessableEntity),
		Message: "Validation failed",
		Errors:  errs,
	})
}

// Paginated wraps a page of items with its pagination metadata.
func Paginated(w http.ResponseWriter, data interface{}, pagination orm.Pagination) {
	write(w, http.StatusOK, envelope{Status: http.StatusOK, Data: map[string]interface{}{
		"items":      data,
		"pagination": pagination,
	}})
}

func Unauthorized(w http.ResponseWriter) { Error(w, http.StatusUnauthorized, "Authentication required") }

func Forbidden(w http.ResponseWriter) { Error(w, http.StatusForbidden, "Forbidden") }

func NotFound(w http.ResponseWriter) { Error(w, http.StatusNotFound, "Not found") }
