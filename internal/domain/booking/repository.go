package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BookingRepository defines the read side of booking persistence. Every
// write goes through a UnitOfWork so it can share the ride lock.
type BookingRepository interface {
	// FindByID retrieves a booking by its unique identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// FindByNumber retrieves a booking by its human-readable booking number.
	FindByNumber(ctx context.Context, number string) (*Booking, error)

	// FindByRideID retrieves every booking of a ride, oldest first.
	FindByRideID(ctx context.Context, rideID uuid.UUID) ([]*Booking, error)

	// FindByPassengerID retrieves a passenger's bookings with pagination.
	FindByPassengerID(ctx context.Context, passengerID uuid.UUID, page, limit int) ([]*Booking, int64, error)

	// FindStaleAccepted returns accepted bookings whose payment is still
	// authorized and were last updated before the cutoff.
	FindStaleAccepted(ctx context.Context, before time.Time, limit int) ([]*Booking, error)

	// ListAll retrieves all bookings with pagination (admin).
	ListAll(ctx context.Context, page, limit int) ([]*Booking, int64, error)

	// CountByStatus returns booking counts grouped by status (admin).
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// OutboxRepository hands committed events to a publisher.
type OutboxRepository interface {
	// Relay claims up to limit unpublished events, oldest first, and calls
	// publish for each. Events whose publish returns nil are marked published;
	// the rest have their attempt count bumped and stay queued. It returns the
	// number of events published.
	Relay(ctx context.Context, limit int, publish func(context.Context, Event) error) (int, error)

	// CountPending returns the number of unpublished events.
	CountPending(ctx context.Context) (int64, error)
}
