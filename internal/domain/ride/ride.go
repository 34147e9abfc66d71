package ride

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
)

// Ride is the aggregate root of the ride inventory: a driver's offer of
// capacityOffered seats on one trip. Remaining seats are never stored here;
// they are derived from the ride's bookings.
type Ride struct {
	id                uuid.UUID
	driverID          uuid.UUID
	origin            string
	destination       string
	departureAt       time.Time
	capacityOffered   int
	pricePerSeatCents int64
	currency          string
	status            RideStatus
	notes             string

	cancelledAt *time.Time
	completedAt *time.Time

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// NewRide creates a new active Ride.
func NewRide(
	driverID uuid.UUID,
	origin, destination string,
	departureAt time.Time,
	capacityOffered int,
	pricePerSeatCents int64,
	currency string,
	notes string,
) (*Ride, error) {
	if driverID == uuid.Nil {
		return nil, domain.NewValidationError("driver ID is required")
	}
	if strings.TrimSpace(origin) == "" {
		return nil, domain.NewValidationError("origin is required")
	}
	if strings.TrimSpace(destination) == "" {
		return nil, domain.NewValidationError("destination is required")
	}
	if departureAt.IsZero() {
		return nil, domain.NewValidationError("departure time is required")
	}
	if capacityOffered < 0 {
		return nil, domain.NewValidationError("capacity cannot be negative")
	}
	if pricePerSeatCents <= 0 {
		return nil, domain.NewValidationError("price per seat must be positive")
	}
	if currency == "" {
		currency = domain.CurrencyMYR
	}

	now := time.Now().UTC()
	return &Ride{
		id:                uuid.New(),
		driverID:          driverID,
		origin:            strings.TrimSpace(origin),
		destination:       strings.TrimSpace(destination),
		departureAt:       departureAt.UTC(),
		capacityOffered:   capacityOffered,
		pricePerSeatCents: pricePerSeatCents,
		currency:          currency,
		status:            StatusActive,
		notes:             notes,
		version:           1,
		createdAt:         now,
		updatedAt:         now,
	}, nil
}

// ReconstructRide rebuilds a Ride from persistence data (no validation).
func ReconstructRide(
	id, driverID uuid.UUID,
	origin, destination string,
	departureAt time.Time,
	capacityOffered int,
	pricePerSeatCents int64,
	currency string,
	status RideStatus,
	notes string,
	cancelledAt, completedAt *time.Time,
	version int64,
	createdAt, updatedAt time.Time,
) *Ride {
	return &Ride{
		id:                id,
		driverID:          driverID,
		origin:            origin,
		destination:       destination,
		departureAt:       departureAt,
		capacityOffered:   capacityOffered,
		pricePerSeatCents: pricePerSeatCents,
		currency:          currency,
		status:            status,
		notes:             notes,
		cancelledAt:       cancelledAt,
		completedAt:       completedAt,
		version:           version,
		createdAt:         createdAt,
		updatedAt:         updatedAt,
	}
}

// --- Getters ---

func (r *Ride) ID() uuid.UUID { return r.id }
func (r *Ride) DriverID() uuid.UUID { return r.driverID }
func (r *Ride) Origin() string { return r.origin }
func (r *Ride) Destination() string { return r.destination }
func (r *Ride) DepartureAt() time.Time { return r.departureAt }
func (r *Ride) CapacityOffered() int { return r.capacityOffered }
func (r *Ride) PricePerSeatCents() int64 { return r.pricePerSeatCents }
func (r *Ride) Currency() string { return r.currency }
func (r *Ride) Status() RideStatus { return r.status }
func (r *Ride) Notes() string { return r.notes }
func (r *Ride) CancelledAt() *time.Time { return r.cancelledAt }
func (r *Ride) CompletedAt() *time.Time { return r.completedAt }
func (r *Ride) Version() int64 { return r.version }
func (r *Ride) CreatedAt() time.Time { return r.createdAt }
func (r *Ride) UpdatedAt() time.Time { return r.updatedAt }

// IsOwnedBy reports whether id is the ride's driver.
func (r *Ride) IsOwnedBy(id uuid.UUID) bool { return r.driverID == id }

// IsActive reports whether the ride still accepts booking activity.
func (r *Ride) IsActive() bool { return r.status == StatusActive }

// --- Behavior ---

// ChangeCapacity sets a new seat capacity. seatsConsumed is the number of
// seats held by accepted or completed bookings; capacity is frozen once any
// seat has been committed.
func (r *Ride) ChangeCapacity(capacity, seatsConsumed int) error {
	if !r.IsActive() {
		return domain.NewRideNotAvailableError(r.id.String(), string(r.status))
	}
	if capacity < 0 {
		return domain.NewValidationError("capacity cannot be negative")
	}
	if seatsConsumed > 0 {
		return domain.NewInvalidStateError("capacity with accepted bookings", "new capacity")
	}
	r.capacityOffered = capacity
	r.touch()
	return nil
}

// Cancel withdraws the ride. Bookings are cascaded by the caller inside the same unit.
func (r *Ride) Cancel() error {
	if !r.status.CanTransitionTo(StatusCancelled) {
		return domain.NewInvalidStateError(string(r.status), string(StatusCancelled))
	}
	now := time.Now().UTC()
	r.status = StatusCancelled
	r.cancelledAt = &now
	r.touch()
	return nil
}

// Complete marks the trip as done.
func (r *Ride) Complete() error {
	if !r.status.CanTransitionTo(StatusCompleted) {
		return domain.NewInvalidStateError(string(r.status), string(StatusCompleted))
	}
	now := time.Now().UTC()
	r.status = StatusCompleted
	r.completedAt = &now
	r.touch()
	return nil
}

// IncrementVersion bumps the version for optimistic locking.
func (r *Ride) IncrementVersion() {
	r.version++
	r.touch()
}

func (r *Ride) touch() {
	r.updatedAt = time.Now().UTC()
}
