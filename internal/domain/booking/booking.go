package booking

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
)

const bookingNumberChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Booking is the aggregate root for a passenger's seat request on a ride.
type Booking struct {
	id               uuid.UUID
	bookingNumber    string
	rideID           uuid.UUID
	passengerID      uuid.UUID
	seatsRequested   int
	totalPriceCents  int64
	currency         string
	status           BookingStatus
	paymentStatus    PaymentStatus
	paymentReference string

	cancelledBy   *uuid.UUID
	cancelNote    string
	failureReason string

	acceptedAt  *time.Time
	rejectedAt  *time.Time
	cancelledAt *time.Time
	completedAt *time.Time

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// generateBookingNumber creates a booking number in the format "BK-XXXXXX".
func generateBookingNumber() (string, error) {
	result := make([]byte, 6)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(bookingNumberChars))))
		if err != nil {
			return "", fmt.Errorf("failed to generate booking number: %w", err)
		}
		result[i] = bookingNumberChars[n.Int64()]
	}
	return "BK-" + string(result), nil
}

// NewBooking creates a new Booking aggregate with status=pending and payment=unpaid.
func NewBooking(
	rideID uuid.UUID,
	passengerID uuid.UUID,
	seatsRequested int,
	totalPriceCents int64,
	currency string,
) (*Booking, error) {
	if rideID == uuid.Nil {
		return nil, domain.NewValidationError("ride ID is required")
	}
	if passengerID == uuid.Nil {
		return nil, domain.NewValidationError("passenger ID is required")
	}
	if seatsRequested < 1 {
		return nil, domain.NewValidationError("at least one seat must be requested")
	}
	if totalPriceCents <= 0 {
		return nil, domain.NewValidationError("total price must be positive")
	}

	bookingNumber, err := generateBookingNumber()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Booking{
		id:              uuid.New(),
		bookingNumber:   bookingNumber,
		rideID:          rideID,
		passengerID:     passengerID,
		seatsRequested:  seatsRequested,
		totalPriceCents: totalPriceCents,
		currency:        currency,
		status:          StatusPending,
		paymentStatus:   PaymentUnpaid,
		version:         1,
		createdAt:       now,
		updatedAt:       now,
	}, nil
}

// ReconstructBooking rebuilds a Booking from persistence data (no validation).
func ReconstructBooking(
	id uuid.UUID,
	bookingNumber string,
	rideID uuid.UUID,
	passengerID uuid.UUID,
	seatsRequested int,
	totalPriceCents int64,
	currency string,
	status BookingStatus,
	paymentStatus PaymentStatus,
	paymentReference string,
	cancelledBy *uuid.UUID,
	cancelNote string,
	failureReason string,
	acceptedAt *time.Time,
	rejectedAt *time.Time,
	cancelledAt *time.Time,
	completedAt *time.Time,
	version int64,
	createdAt time.Time,
	updatedAt time.Time,
) *Booking {
	return &Booking{
		id:               id,
		bookingNumber:    bookingNumber,
		rideID:           rideID,
		passengerID:      passengerID,
		seatsRequested:   seatsRequested,
		totalPriceCents:  totalPriceCents,
		currency:         currency,
		status:           status,
		paymentStatus:    paymentStatus,
		paymentReference: paymentReference,
		cancelledBy:      cancelledBy,
		cancelNote:       cancelNote,
		failureReason:    failureReason,
		acceptedAt:       acceptedAt,
		rejectedAt:       rejectedAt,
		cancelledAt:      cancelledAt,
		completedAt:      completedAt,
		version:          version,
		createdAt:        createdAt,
		updatedAt:        updatedAt,
	}
}

// --- Getters ---

// ID returns the booking's unique identifier.
func (b *Booking) ID() uuid.UUID { return b.id }

// BookingNumber returns the human-readable booking number.
func (b *Booking) BookingNumber() string { return b.bookingNumber }

// RideID returns the ride this booking holds seats on.
func (b *Booking) RideID() uuid.UUID { return b.rideID }

// PassengerID returns the passenger who requested the seats.
func (b *Booking) PassengerID() uuid.UUID { return b.passengerID }

// SeatsRequested returns the number of seats requested.
func (b *Booking) SeatsRequested() int { return b.seatsRequested }

// TotalPriceCents returns the price of all requested seats in cents.
func (b *Booking) TotalPriceCents() int64 { return b.totalPriceCents }

// Currency returns the currency code.
func (b *Booking) Currency() string { return b.currency }

// Status returns the current booking status.
func (b *Booking) Status() BookingStatus { return b.status }

// PaymentStatus returns the current payment status.
func (b *Booking) PaymentStatus() PaymentStatus { return b.paymentStatus }

// PaymentReference returns the payment gate's authorization reference, if any.
func (b *Booking) PaymentReference() string { return b.paymentReference }

// CancelledBy returns who cancelled the booking, or nil.
func (b *Booking) CancelledBy() *uuid.UUID { return b.cancelledBy }

// CancelNote returns the cancellation or rejection reason.
func (b *Booking) CancelNote() string { return b.cancelNote }

// FailureReason returns why an accept was rolled back.
func (b *Booking) FailureReason() string { return b.failureReason }

func (b *Booking) AcceptedAt() *time.Time { return b.acceptedAt }
func (b *Booking) RejectedAt() *time.Time { return b.rejectedAt }
func (b *Booking) CancelledAt() *time.Time { return b.cancelledAt }
func (b *Booking) CompletedAt() *time.Time { return b.completedAt }

// Version returns the entity version for optimistic locking.
func (b *Booking) Version() int64 { return b.version }

// CreatedAt returns the creation timestamp.
func (b *Booking) CreatedAt() time.Time { return b.createdAt }

// UpdatedAt returns the last-updated timestamp.
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }

// IsLive reports whether the booking still participates in the ride (pending or accepted).
func (b *Booking) IsLive() bool {
	return b.status == StatusPending || b.status == StatusAccepted
}

// --- Behavior ---

// Accept transitions the booking from pending to accepted. Capacity is not
// checked here; callers must go through the seat inventory engine.
func (b *Booking) Accept() error {
	if !b.status.CanTransitionTo(StatusAccepted) {
		return b.transitionError(StatusAccepted)
	}
	now := time.Now().UTC()
	b.status = StatusAccepted
	b.acceptedAt = &now
	b.updatedAt = now
	return nil
}

// Reject transitions the booking from pending to rejected.
func (b *Booking) Reject(reason string) error {
	if !b.status.CanTransitionTo(StatusRejected) {
		return b.transitionError(StatusRejected)
	}
	now := time.Now().UTC()
	b.status = StatusRejected
	b.cancelNote = reason
	b.rejectedAt = &now
	b.updatedAt = now
	return nil
}

// Cancel transitions a pending or accepted booking to cancelled.
func (b *Booking) Cancel(cancelledBy uuid.UUID, reason string) error {
	if !b.status.CanBeCancelled() {
		return b.transitionError(StatusCancelled)
	}
	now := time.Now().UTC()
	b.status = StatusCancelled
	b.cancelledBy = &cancelledBy
	b.cancelNote = reason
	b.cancelledAt = &now
	b.updatedAt = now
	return nil
}

// Complete transitions the booking from accepted to completed. Seats stay consumed.
func (b *Booking) Complete() error {
	if !b.status.CanTransitionTo(StatusCompleted) {
		return domain.NewInvalidStateError(string(b.status), string(StatusCompleted))
	}
	now := time.Now().UTC()
	b.status = StatusCompleted
	b.completedAt = &now
	b.updatedAt = now
	return nil
}

// FailAccept rolls an accepted booking whose capture failed into the terminal
// accept_failed state, which releases its seats.
func (b *Booking) FailAccept(reason string) error {
	if !b.status.CanTransitionTo(StatusAcceptFailed) {
		return domain.NewInvalidStateError(string(b.status), string(StatusAcceptFailed))
	}
	b.status = StatusAcceptFailed
	b.failureReason = reason
	b.paymentStatus = PaymentFailed
	b.updatedAt = time.Now().UTC()
	return nil
}

// RecordAuthorization stores the gate's authorization reference.
func (b *Booking) RecordAuthorization(reference string) error {
	if reference == "" {
		return domain.NewValidationError("authorization reference is required")
	}
	if err := b.setPaymentStatus(PaymentAuthorized); err != nil {
		return err
	}
	b.paymentReference = reference
	return nil
}

// RecordCapture marks the authorized funds as captured.
func (b *Booking) RecordCapture() error {
	return b.setPaymentStatus(PaymentCaptured)
}

// RecordPaymentFailure marks the payment as failed (declined authorization).
func (b *Booking) RecordPaymentFailure(reason string) error {
	if err := b.setPaymentStatus(PaymentFailed); err != nil {
		return err
	}
	b.failureReason = reason
	return nil
}

// RecordRefund marks captured or held funds as returned to the passenger.
func (b *Booking) RecordRefund() error {
	return b.setPaymentStatus(PaymentRefunded)
}

// IncrementVersion bumps the version for optimistic locking.
func (b *Booking) IncrementVersion() {
	b.version++
	b.updatedAt = time.Now().UTC()
}

func (b *Booking) setPaymentStatus(target PaymentStatus) error {
	if !b.paymentStatus.CanTransitionTo(target) {
		return domain.NewInvalidStateError("payment "+string(b.paymentStatus), "payment "+string(target))
	}
	b.paymentStatus = target
	b.updatedAt = time.Now().UTC()
	return nil
}

// transitionError distinguishes acting on an already-decided booking from
// an otherwise impossible transition.
func (b *Booking) transitionError(target BookingStatus) error {
	if b.status.IsTerminal() || (target != StatusCancelled && b.status != StatusPending) {
		return domain.NewAlreadyProcessedError("booking "+b.id.String(), string(b.status))
	}
	return domain.NewInvalidStateError(string(b.status), string(target))
}
