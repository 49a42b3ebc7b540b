package service

import (
	"errors"
	"fmt"
)

var ErrForbidden = errors.New("admin role required")

// ValidationError reports a malformed or missing request field. Nothing has
// been written when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field string, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// SaleProcessingError wraps any failure inside the transactional scope other
// than a stock shortfall or a missing product. The scope has been rolled back.
type SaleProcessingError struct {
	SaleID string
	Cause  error
}

func (e *SaleProcessingError) Error() string {
	return fmt.Sprintf("sale %s could not be recorded: %v", e.SaleID, e.Cause)
}

func (e *SaleProcessingError) Unwrap() error {
	return e.Cause
}

// ActivityLogError is only ever logged; it never reaches a caller.
type ActivityLogError struct {
	Type  string
	Cause error
}

func (e *ActivityLogError) Error() string {
	return fmt.Sprintf("activity %q not recorded: %v", e.Type, e.Cause)
}

func (e *ActivityLogError) Unwrap() error {
	return e.Cause
}
