// Package controllers adapts HTTP requests to the services and maps their
// errors onto status codes.
package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shashiranjanraj/kashvi-shop/app/services"
	"github.com/shashiranjanraj/kashvi-shop/pkg/bind"
	"github.com/shashiranjanraj/kashvi-shop/pkg/logger"
	"github.com/shashiranjanraj/kashvi-shop/pkg/middleware"
	"github.com/shashiranjanraj/kashvi-shop/pkg/response"
)

// requester builds the explicit caller identity from the JWT claims.
func requester(r *http.Request) services.Requester {
	c, ok := middleware.ClaimsFromCtx(r.Context())
	if !ok {
		return services.Requester{}
	}
	return services.NewRequester(c.UserID, c.Role)
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || n == 0 {
		response.Fail(w, http.StatusNotFound, "not_found", "Not found")
		return 0, false
	}
	return uint(n), true
}

// decode binds and validates the JSON body, writing the error response
// itself when that fails.
func decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	errs, err := bind.JSON(w, r, dest)
	if err != nil {
		response.Fail(w, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}
	if errs != nil {
		response.ValidationError(w, errs)
		return false
	}
	return true
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{services.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{services.ErrVariantNotFound, http.StatusNotFound, "variant_not_found"},
	{services.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{services.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{services.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{services.ErrDuplicateSKU, http.StatusConflict, "duplicate_sku"},
	{services.ErrDuplicateVariant, http.StatusConflict, "duplicate_variant"},
	{services.ErrEmailTaken, http.StatusConflict, "email_taken"},
	{services.ErrInvalidRequest, http.StatusUnprocessableEntity, "invalid_request"},
	{services.ErrForbidden, http.StatusForbidden, "forbidden"},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{services.ErrPersistence, http.StatusServiceUnavailable, "persistence_failure"},
}

// fail writes the response for a service error. Persistence failures hide
// their cause from the client and tell it to retry.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		if m.status == http.StatusServiceUnavailable {
			logger.WithCtx(r.Context()).Error("request failed", "error", err)
			w.Header().Set("Retry-After", "1")
			response.Fail(w, m.status, m.code, "Temporarily unavailable, please retry")
			return
		}
		response.Fail(w, m.status, m.code, err.Error())
		return
	}

	logger.WithCtx(r.Context()).Error("unhandled error", "error", err)
	response.Fail(w, http.StatusInternalServerError, "internal_error", "Internal server error")
}
