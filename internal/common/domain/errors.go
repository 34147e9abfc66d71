package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an AppError so transports can map it without string matching.
type Kind string

const (
	KindValidation           Kind = "validation"
	KindNotFound             Kind = "not_found"
	KindRideNotAvailable     Kind = "ride_not_available"
	KindCapacityExceeded     Kind = "capacity_exceeded"
	KindUnauthorized         Kind = "unauthorized"
	KindAlreadyProcessed     Kind = "already_processed"
	KindInvalidTransition    Kind = "invalid_transition"
	KindConcurrencyConflict  Kind = "concurrency_conflict"
	KindPaymentNotAuthorized Kind = "payment_not_authorized"
	KindPaymentCaptureFailed Kind = "payment_capture_failed"
)

// AppError is the error type returned by domain and application code for
// every failure the caller is expected to handle.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is matches another *AppError of the same kind, so errors.Is(err, ErrCapacityExceeded) works.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation           = &AppError{Kind: KindValidation}
	ErrNotFound             = &AppError{Kind: KindNotFound}
	ErrRideNotAvailable     = &AppError{Kind: KindRideNotAvailable}
	ErrCapacityExceeded     = &AppError{Kind: KindCapacityExceeded}
	ErrUnauthorized         = &AppError{Kind: KindUnauthorized}
	ErrAlreadyProcessed     = &AppError{Kind: KindAlreadyProcessed}
	ErrInvalidTransition    = &AppError{Kind: KindInvalidTransition}
	ErrConcurrencyConflict  = &AppError{Kind: KindConcurrencyConflict}
	ErrPaymentNotAuthorized = &AppError{Kind: KindPaymentNotAuthorized}
	ErrPaymentCaptureFailed = &AppError{Kind: KindPaymentCaptureFailed}
)

// KindOf returns the kind of the first AppError in err's chain, or "" if none.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// IsKind reports whether err carries an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

func NewValidationError(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

func NewNotFoundError(entity, id string) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

func NewRideNotAvailableError(rideID, status string) *AppError {
	return &AppError{Kind: KindRideNotAvailable, Message: fmt.Sprintf("ride %s is %s", rideID, status)}
}

func NewCapacityExceededError(requested, remaining int) *AppError {
	return &AppError{
		Kind:    KindCapacityExceeded,
		Message: fmt.Sprintf("requested %d seats but only %d remaining", requested, remaining),
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: message}
}

func NewAlreadyProcessedError(entity, status string) *AppError {
	return &AppError{Kind: KindAlreadyProcessed, Message: fmt.Sprintf("%s is already %s", entity, status)}
}

// NewInvalidStateError reports a forbidden state machine transition.
func NewInvalidStateError(from, to string) *AppError {
	return &AppError{Kind: KindInvalidTransition, Message: fmt.Sprintf("cannot transition from %s to %s", from, to)}
}

func NewConflictError(message string) *AppError {
	return &AppError{Kind: KindConcurrencyConflict, Message: message}
}

func NewPaymentNotAuthorizedError(err error) *AppError {
	return &AppError{Kind: KindPaymentNotAuthorized, Message: "payment authorization failed", Err: err}
}

func NewPaymentCaptureFailedError(err error) *AppError {
	return &AppError{Kind: KindPaymentCaptureFailed, Message: "payment capture failed, booking was rolled back", Err: err}
}
