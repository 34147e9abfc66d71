package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
	"github.com/Laju-Ride/service-booking/internal/domain/booking"
	"github.com/Laju-Ride/service-booking/internal/domain/ride"
)

func seedRide(t *testing.T, s *Store, capacity int) *ride.Ride {
	t.Helper()
	r, err := ride.NewRide(uuid.New(), "Shah Alam", "Ipoh", time.Now().Add(time.Hour), capacity, 2000, "", "")
	require.NoError(t, err)
	require.NoError(t, s.Rides().Save(context.Background(), r))
	return r
}

func newPending(t *testing.T, rideID uuid.UUID, seats int) *booking.Booking {
	t.Helper()
	b, err := booking.NewBooking(rideID, uuid.New(), seats, int64(seats)*2000, "MYR")
	require.NoError(t, err)
	return b
}

func TestWithinRide_CommitsOnlyOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := New()
	r := seedRide(t, s, 3)
	b := newPending(t, r.ID(), 1)

	boom := errors.New("boom")
	err := s.UnitOfWork().WithinRide(ctx, r.ID(), func(u booking.RideUnit) error {
		require.NoError(t, u.SaveBooking(b))
		require.NoError(t, u.Emit(booking.NewBookingEvent(booking.EventBookingRequested, b, b.PassengerID(), nil)))
		staged, err := u.Bookings()
		require.NoError(t, err)
		assert.Len(t, staged, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Bookings().FindByID(ctx, b.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	pending, _ := s.Outbox().CountPending(ctx)
	assert.Zero(t, pending)

	err = s.UnitOfWork().WithinRide(ctx, r.ID(), func(u booking.RideUnit) error {
		if err := u.SaveBooking(b); err != nil {
			return err
		}
		return u.Emit(booking.NewBookingEvent(booking.EventBookingRequested, b, b.PassengerID(), nil))
	})
	require.NoError(t, err)

	found, err := s.Bookings().FindByID(ctx, b.ID())
	require.NoError(t, err)
	assert.Equal(t, b.BookingNumber(), found.BookingNumber())
	pending, _ = s.Outbox().CountPending(ctx)
	assert.Equal(t, int64(1), pending)
}

func TestWithinRide_UnknownRide(t *testing.T) {
	s := New()
	called := false
	err := s.UnitOfWork().WithinRide(context.Background(), uuid.New(), func(booking.RideUnit) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, called)
}

func TestWithinRide_StaleVersionIsConflict(t *testing.T) {
	ctx := context.Background()
	s := New()
	r := seedRide(t, s, 3)
	b := newPending(t, r.ID(), 1)
	require.NoError(t, s.UnitOfWork().WithinRide(ctx, r.ID(), func(u booking.RideUnit) error {
		return u.SaveBooking(b)
	}))

	err := s.UnitOfWork().WithinRide(ctx, r.ID(), func(u booking.RideUnit) error {
		stale, err := u.Booking(b.ID())
		require.NoError(t, err)
		require.NoError(t, stale.Accept())
		// version not incremented
		return u.UpdateBooking(stale)
	})
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
}

func TestWithinRide_OneLiveBookingPerPassenger(t *testing.T) {
	ctx := context.Background()
	s := New()
	r := seedRide(t, s, 3)
	first := newPending(t, r.ID(), 1)
	require.NoError(t, s.UnitOfWork().WithinRide(ctx, r.ID(), func(u booking.RideUnit) error {
		return u.SaveBooking(first)
	}))

	dup, err := booking.NewBooking(r.ID(), first.PassengerID(), 1, 2000, "MYR")
	require.NoError(t, err)
	err = s.UnitOfWork().WithinRide(ctx, r.ID(), func(u booking.RideUnit) error {
		return u.SaveBooking(dup)
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)
}

func TestWithinRide_SerializesSameRide(t *testing.T) {
	s := New()
	r := seedRide(t, s, 1)
	other := seedRide(t, s, 1)

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.UnitOfWork().WithinRide(context.Background(), r.ID(), func(booking.RideUnit) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	// A different ride is not blocked.
	require.NoError(t, s.UnitOfWork().WithinRide(context.Background(), other.ID(), func(booking.RideUnit) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.UnitOfWork().WithinRide(ctx, r.ID(), func(booking.RideUnit) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestWithinRide_DropsIdleLocks(t *testing.T) {
	s := New()
	rides := []*ride.Ride{seedRide(t, s, 1), seedRide(t, s, 1), seedRide(t, s, 1)}

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(rd *ride.Ride) {
			defer wg.Done()
			_ = s.UnitOfWork().WithinRide(context.Background(), rd.ID(), func(booking.RideUnit) error {
				time.Sleep(time.Millisecond)
				return nil
			})
		}(rides[i%len(rides)])
	}
	wg.Wait()
	assert.Zero(t, s.lockCount())

	// A unit that gave up waiting releases its interest too.
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.UnitOfWork().WithinRide(context.Background(), rides[0].ID(), func(booking.RideUnit) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.UnitOfWork().WithinRide(ctx, rides[0].ID(), func(booking.RideUnit) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, s.lockCount())

	close(release)
	<-done
	assert.Zero(t, s.lockCount())
}

func TestOutboxRelay(t *testing.T) {
	ctx := context.Background()
	s := New()
	r := seedRide(t, s, 2)
	b := newPending(t, r.ID(), 1)
	require.NoError(t, s.UnitOfWork().WithinRide(ctx, r.ID(), func(u booking.RideUnit) error {
		if err := u.SaveBooking(b); err != nil {
			return err
		}
		return u.Emit(
			booking.NewBookingEvent(booking.EventBookingRequested, b, b.PassengerID(), nil),
			booking.NewRideEvent(booking.EventRideCancelled, r.ID(), r.DriverID(), nil),
		)
	}))

	fail := true
	var seen []booking.EventType
	publish := func(_ context.Context, ev booking.Event) error {
		if ev.Type == booking.EventRideCancelled && fail {
			return errors.New("broker down")
		}
		seen = append(seen, ev.Type)
		return nil
	}

	n, err := s.Outbox().Relay(ctx, 10, publish)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fail = false
	n, err = s.Outbox().Relay(ctx, 10, publish)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []booking.EventType{booking.EventBookingRequested, booking.EventRideCancelled}, seen)

	pending, _ := s.Outbox().CountPending(ctx)
	assert.Zero(t, pending)
}

func TestBookingRepository_Queries(t *testing.T) {
	ctx := context.Background()
	s := New()
	r := seedRide(t, s, 5)
	a := newPending(t, r.ID(), 1)
	b := newPending(t, r.ID(), 2)
	require.NoError(t, s.UnitOfWork().WithinRide(ctx, r.ID(), func(u booking.RideUnit) error {
		if err := u.SaveBooking(a); err != nil {
			return err
		}
		return u.SaveBooking(b)
	}))

	all, err := s.Bookings().FindByRideID(ctx, r.ID())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, total, err := s.Bookings().FindByPassengerID(ctx, a.PassengerID(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, a.ID(), mine[0].ID())

	page, total, err := s.Bookings().ListAll(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, page, 1)

	counts, err := s.Bookings().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["pending"])

	byNumber, err := s.Bookings().FindByNumber(ctx, b.BookingNumber())
	require.NoError(t, err)
	assert.Equal(t, b.ID(), byNumber.ID())
}
