package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order validation and lifecycle.
var (
	ErrEmptyItems           = errors.New("items required")
	ErrInvalidQuantity      = errors.New("quantity must be greater than 0")
	ErrClientRequired       = errors.New("client required")
	ErrNotFound             = errors.New("order not found")
	ErrConflict             = errors.New("order is no longer editable")
	ErrConfirmationRequired = errors.New("cancellation must be confirmed")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// Is makes InvalidQuantityError match ErrInvalidQuantity.
func (e *InvalidQuantityError) Is(target error) bool {
	return target == ErrInvalidQuantity
}

// ConflictError reports that an edit was rejected because the order left
// the editable state. The caller should discard its draft and re-open the
// order.
type ConflictError struct {
	OrderID  string
	Status   Status
	Prepared bool
}

func (e *ConflictError) Error() string {
	if e.Prepared && e.Status == StatusPending {
		return fmt.Sprintf("order %s was marked prepared", e.OrderID)
	}
	return fmt.Sprintf("order %s is %s", e.OrderID, e.Status)
}

// Is makes ConflictError match ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// TransitionError reports a forbidden status change.
type TransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s cannot go from %s to %s", e.OrderID, e.From, e.To)
}

// Is makes TransitionError match ErrConflict.
func (e *TransitionError) Is(target error) bool {
	return target == ErrConflict
}
