package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
	"github.com/Laju-Ride/service-booking/internal/domain/booking"
)

// BookingRepository implements booking.BookingRepository on a Store.
type BookingRepository struct {
	s *Store
}

func (r *BookingRepository) FindByID(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.bookings[id]
	if !ok {
		return nil, domain.NewNotFoundError("Booking", id.String())
	}
	return cloneBooking(b), nil
}

func (r *BookingRepository) FindByNumber(_ context.Context, number string) (*booking.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, b := range r.s.bookings {
		if b.BookingNumber() == number {
			return cloneBooking(b), nil
		}
	}
	return nil, domain.NewNotFoundError("Booking", number)
}

func (r *BookingRepository) FindByRideID(_ context.Context, rideID uuid.UUID) ([]*booking.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.bookingsOfRide(rideID), nil
}

func (r *BookingRepository) FindByPassengerID(_ context.Context, passengerID uuid.UUID, page, limit int) ([]*booking.Booking, int64, error) {
	out := r.filter(func(b *booking.Booking) bool { return b.PassengerID() == passengerID })
	return paginate(out, page, limit), int64(len(out)), nil
}

func (r *BookingRepository) FindStaleAccepted(_ context.Context, before time.Time, limit int) ([]*booking.Booking, error) {
	out := r.filter(func(b *booking.Booking) bool {
		return b.Status() == booking.StatusAccepted &&
			b.PaymentStatus() == booking.PaymentAuthorized &&
			b.UpdatedAt().Before(before)
	})
	sortOldestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *BookingRepository) ListAll(_ context.Context, page, limit int) ([]*booking.Booking, int64, error) {
	out := r.filter(func(*booking.Booking) bool { return true })
	return paginate(out, page, limit), int64(len(out)), nil
}

func (r *BookingRepository) CountByStatus(_ context.Context) (map[string]int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, b := range r.s.bookings {
		counts[b.Status().String()]++
	}
	return counts, nil
}

// filter returns matching bookings newest first.
func (r *BookingRepository) filter(match func(*booking.Booking) bool) []*booking.Booking {
	r.s.mu.RLock()
	var out []*booking.Booking
	for _, b := range r.s.bookings {
		if match(b) {
			out = append(out, cloneBooking(b))
		}
	}
	r.s.mu.RUnlock()
	sortNewestFirst(out)
	return out
}
