package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/google/uuid"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrMissingAddress  = errors.New("delivery address is required")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrInvalidCharges  = errors.New("invalid shared charges")
	ErrOrderNotFound   = errors.New("order not found")
	ErrInvalidStatus   = errors.New("unknown order status")
	ErrForbidden       = errors.New("access denied")
	// ErrIdempotencyConflict is returned when an idempotency key is reused for
	// a different cart, or while the first request with it is still running.
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)

// ProductUnavailableError lists products that do not exist or are not sellable.
type ProductUnavailableError struct {
	ProductIDs []uuid.UUID
}

func (e *ProductUnavailableError) Error() string {
	ids := make([]string, len(e.ProductIDs))
	for i, id := range e.ProductIDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("products unavailable: %s", strings.Join(ids, ", "))
}

// InsufficientStockError is returned before any write when a line asks for
// more than the product has.
type InsufficientStockError struct {
	ProductID uuid.UUID
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

// StockRaceLostError is returned when stock changed between the read and the
// conditional decrement.
type StockRaceLostError struct {
	ProductID uuid.UUID
}

func (e *StockRaceLostError) Error() string {
	return fmt.Sprintf("stock for product %s was taken by a concurrent checkout", e.ProductID)
}

// InvalidTransitionError is returned for a move the lifecycle table forbids.
type InvalidTransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// PersistenceError wraps a store failure. Its message never reaches callers.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PopulationWarning reports a post-commit enrichment failure. The checkout
// it belongs to has already succeeded.
type PopulationWarning struct {
	Source string
	Err    error
}

func (w *PopulationWarning) Error() string {
	return fmt.Sprintf("%s unavailable: %v", w.Source, w.Err)
}

func (w *PopulationWarning) Unwrap() error { return w.Err }

// ServiceError is what controllers render.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
	Details    interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

// toServiceError maps an error from the checkout or lifecycle paths to its
// HTTP shape. Unknown errors are reported as an opaque persistence failure.
func toServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}

	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}

	var unavailable *ProductUnavailableError
	var insufficient *InsufficientStockError
	var raceLost *StockRaceLostError
	var invalidTransition *InvalidTransitionError

	switch {
	case errors.Is(err, ErrEmptyCart):
		return &ServiceError{StatusCode: http.StatusBadRequest, Code: "EMPTY_CART", Message: "At least one item is required", Err: err}
	case errors.Is(err, ErrMissingAddress):
		return &ServiceError{StatusCode: http.StatusBadRequest, Code: "MISSING_ADDRESS", Message: "Delivery address is required", Err: err}
	case errors.Is(err, ErrInvalidQuantity):
		return &ServiceError{StatusCode: http.StatusBadRequest, Code: "INVALID_QUANTITY", Message: "Quantity must be at least 1", Err: err}
	case errors.Is(err, ErrInvalidCharges):
		return &ServiceError{StatusCode: http.StatusBadRequest, Code: "INVALID_CHARGES", Message: err.Error(), Err: err}
	case errors.Is(err, ErrInvalidStatus):
		return &ServiceError{StatusCode: http.StatusBadRequest, Code: "INVALID_STATUS", Message: err.Error(), Err: err}
	case errors.As(err, &unavailable):
		return &ServiceError{
			StatusCode: http.StatusUnprocessableEntity,
			Code:       "PRODUCT_UNAVAILABLE",
			Message:    "Some products are no longer available",
			Details:    fields{"product_ids": unavailable.ProductIDs},
			Err:        err,
		}
	case errors.As(err, &insufficient):
		return &ServiceError{
			StatusCode: http.StatusConflict,
			Code:       "INSUFFICIENT_STOCK",
			Message:    "Not enough stock for the requested quantity",
			Details: fields{
				"product_id": insufficient.ProductID,
				"available":  insufficient.Available,
				"requested":  insufficient.Requested,
			},
			Err: err,
		}
	case errors.As(err, &raceLost):
		return &ServiceError{
			StatusCode: http.StatusConflict,
			Code:       "STOCK_RACE_LOST",
			Message:    "Stock changed while placing the order, please retry",
			Details:    fields{"product_id": raceLost.ProductID},
			Err:        err,
		}
	case errors.As(err, &invalidTransition):
		return &ServiceError{
			StatusCode: http.StatusConflict,
			Code:       "INVALID_TRANSITION",
			Message:    err.Error(),
			Details:    fields{"from": invalidTransition.From, "to": invalidTransition.To},
			Err:        err,
		}
	case errors.Is(err, ErrIdempotencyConflict):
		return &ServiceError{StatusCode: http.StatusConflict, Code: "IDEMPOTENCY_CONFLICT", Message: "Idempotency key was already used for a different request", Err: err}
	case errors.Is(err, ErrOrderNotFound):
		return &ServiceError{StatusCode: http.StatusNotFound, Code: "ORDER_NOT_FOUND", Message: "Order not found", Err: err}
	case errors.Is(err, ErrForbidden):
		return &ServiceError{StatusCode: http.StatusForbidden, Code: "FORBIDDEN", Message: "Access denied", Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &ServiceError{StatusCode: http.StatusRequestTimeout, Code: "REQUEST_ABORTED", Message: "Request was cancelled before the order was placed", Err: err}
	default:
		return &ServiceError{StatusCode: http.StatusInternalServerError, Code: "PERSISTENCE_ERROR", Message: "Failed to process order", Err: err}
	}
}

// fields is the shape of ServiceError.Details.
type fields = map[string]interface{}

// failureKind buckets a failed checkout for the Reason metric dimension.
// The exact error code goes to the log instead.
func failureKind(err error) string {
	var unavailable *ProductUnavailableError
	var insufficient *InsufficientStockError
	var raceLost *StockRaceLostError
	switch {
	case errors.As(err, &unavailable), errors.As(err, &insufficient), errors.As(err, &raceLost):
		return "stock"
	case errors.Is(err, ErrIdempotencyConflict):
		return "idempotency"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "aborted"
	}
	if se := toServiceError(err); se != nil && se.StatusCode < http.StatusInternalServerError {
		return "invalid"
	}
	return "internal"
}
