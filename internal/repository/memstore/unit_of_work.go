package memstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
	"github.com/Laju-Ride/service-booking/internal/domain/booking"
	"github.com/Laju-Ride/service-booking/internal/domain/ride"
)

// UnitOfWork implements booking.UnitOfWork on a Store.
type UnitOfWork struct {
	s *Store
}

// WithinRide takes the ride's lock (giving up if ctx ends first), runs fn on a
// staging unit and applies the staged writes only when fn returns nil.
func (u *UnitOfWork) WithinRide(ctx context.Context, rideID uuid.UUID, fn func(booking.RideUnit) error) error {
	lock := u.s.acquireLock(rideID)
	defer u.s.releaseLock(rideID, lock)
	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for ride %s lock: %w", rideID, ctx.Err())
	}
	defer func() { <-lock.ch }()

	u.s.mu.RLock()
	rd, ok := u.s.rides[rideID]
	if ok {
		rd = cloneRide(rd)
	}
	u.s.mu.RUnlock()
	if !ok {
		return domain.NewNotFoundError("Ride", rideID.String())
	}

	unit := &rideUnit{
		s:       u.s,
		ride:    rd,
		created: make(map[uuid.UUID]*booking.Booking),
		updated: make(map[uuid.UUID]*booking.Booking),
	}
	if err := fn(unit); err != nil {
		return err
	}
	return unit.apply()
}

type rideUnit struct {
	s           *Store
	ride        *ride.Ride
	rideUpdated bool
	order       []uuid.UUID
	created     map[uuid.UUID]*booking.Booking
	updated     map[uuid.UUID]*booking.Booking
	events      []booking.Event
}

func (u *rideUnit) Ride() *ride.Ride { return u.ride }

func (u *rideUnit) Bookings() ([]*booking.Booking, error) {
	u.s.mu.RLock()
	committed := u.s.bookingsOfRide(u.ride.ID())
	u.s.mu.RUnlock()

	out := make([]*booking.Booking, 0, len(committed)+len(u.created))
	for _, b := range committed {
		if staged, ok := u.updated[b.ID()]; ok {
			out = append(out, cloneBooking(staged))
			continue
		}
		out = append(out, b)
	}
	for _, id := range u.order {
		out = append(out, cloneBooking(u.created[id]))
	}
	return out, nil
}

func (u *rideUnit) Booking(id uuid.UUID) (*booking.Booking, error) {
	if b, ok := u.created[id]; ok {
		return cloneBooking(b), nil
	}
	if b, ok := u.updated[id]; ok {
		return cloneBooking(b), nil
	}
	u.s.mu.RLock()
	b, ok := u.s.bookings[id]
	u.s.mu.RUnlock()
	if !ok || b.RideID() != u.ride.ID() {
		return nil, domain.NewNotFoundError("Booking", id.String())
	}
	return cloneBooking(b), nil
}

func (u *rideUnit) SaveBooking(b *booking.Booking) error {
	if b.RideID() != u.ride.ID() {
		return fmt.Errorf("booking %s does not belong to locked ride %s", b.ID(), u.ride.ID())
	}
	if _, ok := u.created[b.ID()]; !ok {
		u.order = append(u.order, b.ID())
	}
	u.created[b.ID()] = cloneBooking(b)
	return nil
}

func (u *rideUnit) UpdateBooking(b *booking.Booking) error {
	if b.RideID() != u.ride.ID() {
		return fmt.Errorf("booking %s does not belong to locked ride %s", b.ID(), u.ride.ID())
	}
	if _, ok := u.created[b.ID()]; ok {
		u.created[b.ID()] = cloneBooking(b)
		return nil
	}
	u.updated[b.ID()] = cloneBooking(b)
	return nil
}

func (u *rideUnit) UpdateRide(r *ride.Ride) error {
	if r.ID() != u.ride.ID() {
		return fmt.Errorf("ride %s is not the locked ride %s", r.ID(), u.ride.ID())
	}
	u.ride = cloneRide(r)
	u.rideUpdated = true
	return nil
}

func (u *rideUnit) Emit(events ...booking.Event) error {
	u.events = append(u.events, events...)
	return nil
}

// apply validates every staged write, then publishes all of them at once.
func (u *rideUnit) apply() error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if u.rideUpdated {
		current := u.s.rides[u.ride.ID()]
		if current.Version() != u.ride.Version()-1 {
			return domain.NewConflictError("ride was modified by another transaction")
		}
	}
	for id, b := range u.updated {
		current, ok := u.s.bookings[id]
		if !ok {
			return domain.NewNotFoundError("Booking", id.String())
		}
		if current.Version() != b.Version()-1 {
			return domain.NewConflictError("booking was modified by another transaction")
		}
	}
	for _, id := range u.order {
		if _, exists := u.s.bookings[id]; exists {
			return domain.NewConflictError("booking already exists")
		}
		if err := u.checkLivePassenger(u.created[id]); err != nil {
			return err
		}
	}

	if u.rideUpdated {
		u.s.rides[u.ride.ID()] = u.ride
	}
	for id, b := range u.updated {
		u.s.bookings[id] = b
	}
	for _, id := range u.order {
		u.s.bookings[id] = u.created[id]
	}

	if len(u.events) > 0 {
		u.s.outboxMu.Lock()
		for _, ev := range u.events {
			u.s.outbox = append(u.s.outbox, &outboxRecord{event: ev})
		}
		u.s.outboxMu.Unlock()
	}
	return nil
}

// checkLivePassenger mirrors the partial unique index on live bookings.
// Callers must hold s.mu.
func (u *rideUnit) checkLivePassenger(nb *booking.Booking) error {
	if !nb.IsLive() {
		return nil
	}
	for _, b := range u.s.bookings {
		if b.RideID() != nb.RideID() || b.PassengerID() != nb.PassengerID() {
			continue
		}
		live := b.IsLive()
		if staged, ok := u.updated[b.ID()]; ok {
			live = staged.IsLive()
		}
		if live {
			return domain.NewAlreadyProcessedError("passenger booking on ride "+nb.RideID().String(), string(b.Status()))
		}
	}
	return nil
}
