package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
	"github.com/Laju-Ride/service-booking/internal/domain/ride"
)

// RideRepository implements ride.RideRepository on a Store.
type RideRepository struct {
	s *Store
}

func (r *RideRepository) FindByID(_ context.Context, id uuid.UUID) (*ride.Ride, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rd, ok := r.s.rides[id]
	if !ok {
		return nil, domain.NewNotFoundError("Ride", id.String())
	}
	return cloneRide(rd), nil
}

func (r *RideRepository) FindActive(_ context.Context, page, limit int) ([]*ride.Ride, int64, error) {
	return r.find(func(rd *ride.Ride) bool { return rd.IsActive() }, page, limit)
}

func (r *RideRepository) FindByDriverID(_ context.Context, driverID uuid.UUID, page, limit int) ([]*ride.Ride, int64, error) {
	return r.find(func(rd *ride.Ride) bool { return rd.DriverID() == driverID }, page, limit)
}

func (r *RideRepository) Save(_ context.Context, rd *ride.Ride) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.rides[rd.ID()]; exists {
		return domain.NewConflictError("ride already exists")
	}
	r.s.rides[rd.ID()] = cloneRide(rd)
	return nil
}

func (r *RideRepository) find(match func(*ride.Ride) bool, page, limit int) ([]*ride.Ride, int64, error) {
	r.s.mu.RLock()
	var out []*ride.Ride
	for _, rd := range r.s.rides {
		if match(rd) {
			out = append(out, cloneRide(rd))
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DepartureAt().Before(out[j].DepartureAt()) })
	return paginate(out, page, limit), int64(len(out)), nil
}
