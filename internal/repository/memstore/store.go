// Package memstore is an in-process implementation of the ride and booking
// stores. Each ride has its own lock, so units of work on one ride are
// serialized while different rides proceed in parallel. It backs the
// "memory" storage driver and the unit tests.
package memstore

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Laju-Ride/service-booking/internal/domain/booking"
	"github.com/Laju-Ride/service-booking/internal/domain/ride"
)

type outboxRecord struct {
	event       booking.Event
	publishedAt *time.Time
	attempts    int
	lastError   string
}

// Store holds all data in memory. Aggregates are copied on the way in and
// out so callers never share mutable state with the store.
type Store struct {
	mu       sync.RWMutex
	rides    map[uuid.UUID]*ride.Ride
	bookings map[uuid.UUID]*booking.Booking

	outboxMu sync.Mutex
	outbox   []*outboxRecord

	locksMu   sync.Mutex
	rideLocks map[uuid.UUID]*rideLock
}

// rideLock is a one-slot semaphore shared by every unit holding or waiting
// for a ride. It is dropped from the store once refs reaches zero.
type rideLock struct {
	ch   chan struct{}
	refs int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		rides:     make(map[uuid.UUID]*ride.Ride),
		bookings:  make(map[uuid.UUID]*booking.Booking),
		rideLocks: make(map[uuid.UUID]*rideLock),
	}
}

// Rides returns a RideRepository view of the store.
func (s *Store) Rides() *RideRepository { return &RideRepository{s: s} }

// Bookings returns a BookingRepository view of the store.
func (s *Store) Bookings() *BookingRepository { return &BookingRepository{s: s} }

// Outbox returns an OutboxRepository view of the store.
func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{s: s} }

// UnitOfWork returns the per-ride unit of work of the store.
func (s *Store) UnitOfWork() *UnitOfWork { return &UnitOfWork{s: s} }

// acquireLock registers interest in a ride's lock. Every call must be paired
// with releaseLock.
func (s *Store) acquireLock(rideID uuid.UUID) *rideLock {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.rideLocks[rideID]
	if !ok {
		l = &rideLock{ch: make(chan struct{}, 1)}
		s.rideLocks[rideID] = l
	}
	l.refs++
	return l
}

func (s *Store) releaseLock(rideID uuid.UUID, l *rideLock) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.rideLocks, rideID)
	}
}

func (s *Store) lockCount() int {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	return len(s.rideLocks)
}

func cloneRide(r *ride.Ride) *ride.Ride {
	return ride.ReconstructRide(
		r.ID(), r.DriverID(),
		r.Origin(), r.Destination(),
		r.DepartureAt(),
		r.CapacityOffered(),
		r.PricePerSeatCents(),
		r.Currency(),
		r.Status(),
		r.Notes(),
		copyTime(r.CancelledAt()), copyTime(r.CompletedAt()),
		r.Version(),
		r.CreatedAt(), r.UpdatedAt(),
	)
}

func cloneBooking(b *booking.Booking) *booking.Booking {
	var cancelledBy *uuid.UUID
	if b.CancelledBy() != nil {
		id := *b.CancelledBy()
		cancelledBy = &id
	}
	return booking.ReconstructBooking(
		b.ID(),
		b.BookingNumber(),
		b.RideID(),
		b.PassengerID(),
		b.SeatsRequested(),
		b.TotalPriceCents(),
		b.Currency(),
		b.Status(),
		b.PaymentStatus(),
		b.PaymentReference(),
		cancelledBy,
		b.CancelNote(),
		b.FailureReason(),
		copyTime(b.AcceptedAt()),
		copyTime(b.RejectedAt()),
		copyTime(b.CancelledAt()),
		copyTime(b.CompletedAt()),
		b.Version(),
		b.CreatedAt(),
		b.UpdatedAt(),
	)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// bookingsOfRide returns clones of the ride's bookings, oldest first.
// Callers must hold s.mu.
func (s *Store) bookingsOfRide(rideID uuid.UUID) []*booking.Booking {
	var out []*booking.Booking
	for _, b := range s.bookings {
		if b.RideID() == rideID {
			out = append(out, cloneBooking(b))
		}
	}
	sortOldestFirst(out)
	return out
}

func sortOldestFirst(bookings []*booking.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt().Before(bookings[j].CreatedAt())
	})
}

func sortNewestFirst(bookings []*booking.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt().After(bookings[j].CreatedAt())
	})
}

func paginate[T any](items []T, page, limit int) []T {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		return []T{}
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
