package models

import (
	"errors"
	"fmt"
)

// Error kinds shared by every billing operation
var (
	// ErrValidation is returned for malformed or missing input
	ErrValidation = errors.New("validation error")

	// ErrInvalidState is returned when an invoice is in the wrong lifecycle state
	ErrInvalidState = errors.New("invalid state")

	// ErrConcurrencyConflict is returned when optimistic retries are exhausted
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrPersistence is returned when the underlying store fails
	ErrPersistence = errors.New("persistence error")

	// ErrNotFound is returned when a referenced document does not exist
	ErrNotFound = errors.New("not found")
)

// Error codes surfaced to callers alongside the kind
const (
	CodeValidation              = "VALIDATION_ERROR"
	CodeInvalidState            = "INVALID_STATE"
	CodeConcurrencyConflict     = "CONCURRENCY_CONFLICT"
	CodePersistence             = "PERSISTENCE_ERROR"
	CodeNotFound                = "NOT_FOUND"
	CodeDuplicateInvoice        = "DUPLICATE_INVOICE"
	CodeCompanyDataMissing      = "COMPANY_DATA_MISSING"
	CodeInvoiceAlreadyRectified = "INVOICE_ALREADY_RECTIFIED"
	CodePaymentExceedsTotal     = "PAYMENT_EXCEEDS_TOTAL"
	CodePaymentRejected         = "PAYMENT_REJECTED"
	CodePaymentGateway          = "PAYMENT_GATEWAY_ERROR"
	CodeInsufficientLogistics   = "INSUFFICIENT_LOGISTICS_DATA"
	CodeTaxVaultLocked          = "TAX_VAULT_LOCKED"
	CodeMonthAlreadyClosed      = "MONTH_ALREADY_CLOSED"
)

// BillingError is the typed domain error returned by the billing core.
// Message is a human-readable Spanish text safe to show to end users.
type BillingError struct {
	Op      string // Operation that failed
	Kind    error  // One of the Err* kinds above
	Code    string // Stable machine-readable code
	Field   string // Offending field, if any
	Message string // Spanish message for display
	Err     error  // Underlying cause
}

// Error implements the error interface
func (e *BillingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error
func (e *BillingError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the error kind
func (e *BillingError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// NewValidationError creates a validation error
func NewValidationError(op, field, message string) *BillingError {
	return &BillingError{Op: op, Kind: ErrValidation, Code: CodeValidation, Field: field, Message: message}
}

// NewValidationErrorWithCode creates a validation error with a specific code
func NewValidationErrorWithCode(op, code, field, message string) *BillingError {
	return &BillingError{Op: op, Kind: ErrValidation, Code: code, Field: field, Message: message}
}

// NewInvalidStateError creates an invalid state error
func NewInvalidStateError(op, code, message string) *BillingError {
	if code == "" {
		code = CodeInvalidState
	}
	return &BillingError{Op: op, Kind: ErrInvalidState, Code: code, Message: message}
}

// NewConcurrencyConflictError wraps an exhausted retry loop
func NewConcurrencyConflictError(op string, err error) *BillingError {
	return &BillingError{
		Op:      op,
		Kind:    ErrConcurrencyConflict,
		Code:    CodeConcurrencyConflict,
		Message: "La operación entró en conflicto con otra modificación concurrente, inténtelo de nuevo",
		Err:     err,
	}
}

// NewPersistenceError wraps a store failure
func NewPersistenceError(op string, err error) *BillingError {
	return &BillingError{
		Op:      op,
		Kind:    ErrPersistence,
		Code:    CodePersistence,
		Message: "Error al acceder al almacenamiento de datos",
		Err:     err,
	}
}

// NewNotFoundError creates a not found error for an entity
func NewNotFoundError(op, entity, id string) *BillingError {
	return &BillingError{
		Op:      op,
		Kind:    ErrNotFound,
		Code:    CodeNotFound,
		Field:   "id",
		Message: fmt.Sprintf("%s no encontrado: %s", entity, id),
	}
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidState checks if an error is an invalid state error
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsConcurrencyConflict checks if an error is a concurrency conflict
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsPersistence checks if an error is a persistence error
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// ErrorCode returns the code of a BillingError, or an empty string
func ErrorCode(err error) string {
	var billingErr *BillingError
	if errors.As(err, &billingErr) {
		return billingErr.Code
	}
	return ""
}

// UserMessage returns the display message of a BillingError, falling back to err.Error()
func UserMessage(err error) string {
	var billingErr *BillingError
	if errors.As(err, &billingErr) {
		return billingErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
