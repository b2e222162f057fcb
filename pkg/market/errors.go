package market

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the market services. Only
// ErrConflict is safely retryable with the same request.
var (
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrListingNotAvailable     = errors.New("listing not available")
	ErrInvalidState            = errors.New("invalid state")
	ErrBookingExpired          = errors.New("booking expired")
	ErrConflict                = errors.New("concurrent write conflict")
	ErrNotFound                = errors.New("not found")
	ErrInvalidTransition       = errors.New("invalid listing transition")
	ErrNotListingOwner         = errors.New("not listing owner")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	ErrInvalidUserID         = errors.New("invalid user id")
	ErrInvalidListingID      = errors.New("invalid listing id")
	ErrInvalidBookingID      = errors.New("invalid booking id")
	ErrInvalidIdempotencyKey = errors.New("invalid idempotency key")
	ErrInvalidAmountCents    = errors.New("invalid amount cents")
	ErrInvalidMetadataJSON   = errors.New("invalid metadata json")
	ErrInvalidActionKind     = errors.New("invalid action kind")
	ErrInvalidBookingStatus  = errors.New("invalid booking status")
	ErrInvalidListingStatus  = errors.New("invalid listing status")
	ErrInvalidStatusCause    = errors.New("invalid status cause")
	ErrInvalidInitiator      = errors.New("invalid initiator")
	ErrInvalidHoldDuration   = errors.New("invalid hold duration")
	ErrInvalidServiceConfig  = errors.New("invalid service config")
	ErrLedgerChainBroken     = errors.New("ledger chain broken")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// Retryable reports whether the caller may safely re-invoke the same
// operation after this failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
