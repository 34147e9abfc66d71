package ride

import (
	"context"

	"github.com/google/uuid"
)

// RideRepository defines the persistence contract for ride aggregates.
type RideRepository interface {
	// FindByID retrieves a ride by its unique identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*Ride, error)

	// FindActive retrieves active rides ordered by departure with pagination.
	FindActive(ctx context.Context, page, limit int) ([]*Ride, int64, error)

	// FindByDriverID retrieves rides offered by a driver with pagination.
	FindByDriverID(ctx context.Context, driverID uuid.UUID, page, limit int) ([]*Ride, int64, error)

	// Save persists a new ride.
	Save(ctx context.Context, ride *Ride) error
}
