package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError reports malformed or missing input. No state change has
// occurred when it is returned; the caller corrects the input and retries.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NewValidationError creates a new validation error for a field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientStockError reports that a requested issue quantity exceeds the
// currently available quantity. It carries both values so the caller can
// decide whether to reduce the quantity or source from another location.
type InsufficientStockError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

// Error implements the error interface
func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: requested %s, available %s",
		e.Requested.String(), e.Available.String())
}

// NewInsufficientStockError creates a new insufficient stock error
func NewInsufficientStockError(requested, available decimal.Decimal) *InsufficientStockError {
	return &InsufficientStockError{Requested: requested, Available: available}
}

// AllocationError reports that the batch walk exhausted all batches before
// the requested quantity was satisfied, despite a passing availability check.
// This signals a race with a concurrent consumer or a defect in position
// maintenance; the whole issuance is discarded.
type AllocationError struct {
	Requested decimal.Decimal
	Allocated decimal.Decimal
}

// Error implements the error interface
func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation failed: requested %s, only %s allocatable from available batches",
		e.Requested.String(), e.Allocated.String())
}

// NewAllocationError creates a new allocation error
func NewAllocationError(requested, allocated decimal.Decimal) *AllocationError {
	return &AllocationError{Requested: requested, Allocated: allocated}
}
