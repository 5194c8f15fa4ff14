package services

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. The typed errors below match them through Is.
var (
	ErrProductNotFound    = errors.New("product not found")
	ErrVariantNotFound    = errors.New("variant not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrPersistence        = errors.New("persistence failure")
	ErrOrderNotFound      = errors.New("order not found")
	ErrForbidden          = errors.New("forbidden")
	ErrDuplicateSKU       = errors.New("duplicate sku")
	ErrDuplicateVariant   = errors.New("duplicate variant")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
)

// ProductNotFoundError names the product id, or the SKU, that failed to
// resolve.
type ProductNotFoundError struct {
	ProductID uint
	SKU       string
}

func (e *ProductNotFoundError) Error() string {
	if e.SKU != "" {
		return fmt.Sprintf("no product or variant with sku %q", e.SKU)
	}
	return fmt.Sprintf("product %d not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

// VariantNotFoundError names the descriptor that did not resolve to exactly
// one variant of the product.
type VariantNotFoundError struct {
	ProductID   uint
	ProductName string
	Label       string
	Ambiguous   bool
}

func (e *VariantNotFoundError) Error() string {
	label := e.Label
	if label == "" {
		label = "(no variant given)"
	}
	if e.Ambiguous {
		return fmt.Sprintf("variant %q matches more than one variant of %q (product %d)", label, e.ProductName, e.ProductID)
	}
	if e.ProductID == 0 {
		return fmt.Sprintf("variant %s not found", label)
	}
	return fmt.Sprintf("variant %q not found for %q (product %d)", label, e.ProductName, e.ProductID)
}

func (e *VariantNotFoundError) Is(target error) bool { return target == ErrVariantNotFound }

// InsufficientStockError reports the record that could not cover the
// aggregated quantity requested across all lines of one placement.
type InsufficientStockError struct {
	ProductID   uint
	VariantID   *uint
	ProductName string
	Label       string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for %s (%s): requested %d, available %d",
		e.ProductName, e.Label, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InvalidRequestError is a malformed request; Field is empty when the
// problem is not tied to one input.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Reason
	}
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

func (e *InvalidRequestError) Is(target error) bool { return target == ErrInvalidRequest }

func invalid(field, format string, args ...any) error {
	return &InvalidRequestError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// PersistenceError wraps a storage failure. The caller may retry the whole
// operation; nothing was committed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// IsRetryable reports whether err came from the storage layer rather than
// from the request itself.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// RejectionReason maps an error to the label used by the order rejection metric.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrVariantNotFound):
		return "variant_not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "persistence"
	}
}
