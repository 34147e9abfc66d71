package booking

import (
	"context"

	"github.com/google/uuid"

	"github.com/Laju-Ride/service-booking/internal/domain/ride"
)

// RideUnit is an atomic unit of work holding the exclusive lock of one ride.
// Reads observe every commit made before the lock was taken; writes and
// emitted events become visible together, or not at all.
type RideUnit interface {
	// Ride returns the locked ride.
	Ride() *ride.Ride

	// Bookings re-reads every booking of the locked ride.
	Bookings() ([]*Booking, error)

	// Booking loads one booking of the locked ride.
	Booking(id uuid.UUID) (*Booking, error)

	SaveBooking(b *Booking) error
	UpdateBooking(b *Booking) error
	UpdateRide(r *ride.Ride) error

	// Emit appends events to the outbox within the unit.
	Emit(events ...Event) error
}

// UnitOfWork serializes work per ride. Units on different rides never block
// each other.
type UnitOfWork interface {
	// WithinRide locks rideID, runs fn and commits if fn returns nil. A
	// missing ride yields a NotFound error without calling fn.
	WithinRide(ctx context.Context, rideID uuid.UUID, fn func(unit RideUnit) error) error
}
