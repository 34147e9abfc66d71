// Package payment holds the contract the booking lifecycle uses to move
// money, plus the clients that fulfil it.
package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrDeclined is returned when the payment service refuses an operation.
	ErrDeclined = errors.New("payment declined")
	// ErrAlreadyCaptured is returned by Capture when the authorization was
	// captured by an earlier call. The funds are settled.
	ErrAlreadyCaptured = errors.New("payment already captured")
)

// Charge describes the funds to earmark for a booking.
type Charge struct {
	BookingID   uuid.UUID
	PassengerID uuid.UUID
	AmountCents int64
	Currency    string
}

// Authorization is a successful hold on a passenger's funds.
type Authorization struct {
	Reference string
}

// Gate is the external payment collaborator. Implementations must honour ctx
// deadlines; callers bound every call with a timeout and treat a timeout as
// a failure. Capture must be idempotent per reference: repeating it either
// succeeds or returns ErrAlreadyCaptured.
type Gate interface {
	Authorize(ctx context.Context, charge Charge) (Authorization, error)
	Capture(ctx context.Context, reference string, amountCents int64) error
	Release(ctx context.Context, reference string) error
	Refund(ctx context.Context, reference string, amountCents int64) error
}
