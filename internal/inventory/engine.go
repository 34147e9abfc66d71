package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
	"github.com/Laju-Ride/service-booking/internal/domain/booking"
	"github.com/Laju-Ride/service-booking/internal/domain/ride"
)

// Outcome is the result of a reservation attempt.
type Outcome int

const (
	Insufficient Outcome = iota
	Reserved
)

func (o Outcome) String() string {
	if o == Reserved {
		return "reserved"
	}
	return "insufficient"
}

// Engine keeps a ride's offered capacity and its committed bookings
// consistent. Remaining seats are always derived from booking rows.
type Engine struct {
	rides    ride.RideRepository
	bookings booking.BookingRepository
	logger   *zap.Logger
}

// NewEngine creates a new Engine.
func NewEngine(rides ride.RideRepository, bookings booking.BookingRepository, logger *zap.Logger) *Engine {
	return &Engine{rides: rides, bookings: bookings, logger: logger}
}

// Remaining returns capacity minus the seats held by accepted and completed
// bookings of the ride. It takes no lock; use it for display and advisory checks.
func (e *Engine) Remaining(ctx context.Context, rideID uuid.UUID) (int, error) {
	r, err := e.rides.FindByID(ctx, rideID)
	if err != nil {
		return 0, err
	}
	bookings, err := e.bookings.FindByRideID(ctx, rideID)
	if err != nil {
		return 0, fmt.Errorf("failed to load bookings of ride %s: %w", rideID, err)
	}
	return booking.RemainingSeats(r.CapacityOffered(), bookings), nil
}

// RemainingIn computes remaining seats from inside a ride unit.
func (e *Engine) RemainingIn(unit booking.RideUnit) (int, error) {
	bookings, err := unit.Bookings()
	if err != nil {
		return 0, fmt.Errorf("failed to load bookings of ride %s: %w", unit.Ride().ID(), err)
	}
	return booking.RemainingSeats(unit.Ride().CapacityOffered(), bookings), nil
}

// TryReserve accepts b if its seats fit in the ride's remaining capacity.
// The check and the transition happen inside unit, which must hold the lock
// of b's ride, so no other commit can interleave between them. On
// Insufficient nothing is written.
func (e *Engine) TryReserve(ctx context.Context, unit booking.RideUnit, b *booking.Booking) (Outcome, error) {
	r := unit.Ride()
	if r.ID() != b.RideID() {
		return Insufficient, fmt.Errorf("unit holds ride %s, booking %s belongs to ride %s", r.ID(), b.ID(), b.RideID())
	}
	if !r.IsActive() {
		return Insufficient, domain.NewRideNotAvailableError(r.ID().String(), string(r.Status()))
	}

	remaining, err := e.RemainingIn(unit)
	if err != nil {
		return Insufficient, err
	}
	if b.SeatsRequested() > remaining {
		e.logger.Debug("reservation refused",
			zap.String("booking_id", b.ID().String()),
			zap.String("ride_id", r.ID().String()),
			zap.Int("requested", b.SeatsRequested()),
			zap.Int("remaining", remaining),
		)
		return Insufficient, nil
	}

	if err := b.Accept(); err != nil {
		return Insufficient, err
	}
	b.IncrementVersion()
	if err := unit.UpdateBooking(b); err != nil {
		return Insufficient, fmt.Errorf("failed to persist reservation: %w", err)
	}

	e.logger.Debug("seats reserved",
		zap.String("booking_id", b.ID().String()),
		zap.String("ride_id", r.ID().String()),
		zap.Int("seats", b.SeatsRequested()),
		zap.Int("remaining", remaining-b.SeatsRequested()),
	)
	return Reserved, nil
}
