package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Laju-Ride/service-booking/internal/domain/booking"
	"github.com/Laju-Ride/service-booking/internal/domain/ride"
	"github.com/Laju-Ride/service-booking/internal/repository/memstore"
)

type fixture struct {
	store  *memstore.Store
	engine *Engine
}

func newFixture() *fixture {
	s := memstore.New()
	return &fixture{store: s, engine: NewEngine(s.Rides(), s.Bookings(), zap.NewNop())}
}

func (f *fixture) ride(t *testing.T, capacity int) *ride.Ride {
	t.Helper()
	r, err := ride.NewRide(uuid.New(), "Bangsar", "Melaka", time.Now().Add(time.Hour), capacity, 1000, "", "")
	require.NoError(t, err)
	require.NoError(t, f.store.Rides().Save(context.Background(), r))
	return r
}

func (f *fixture) pending(t *testing.T, rideID uuid.UUID, seats int) *booking.Booking {
	t.Helper()
	b, err := booking.NewBooking(rideID, uuid.New(), seats, int64(seats)*1000, "MYR")
	require.NoError(t, err)
	require.NoError(t, f.store.UnitOfWork().WithinRide(context.Background(), rideID, func(u booking.RideUnit) error {
		return u.SaveBooking(b)
	}))
	return b
}

func (f *fixture) reserve(t *testing.T, b *booking.Booking) (Outcome, error) {
	t.Helper()
	var outcome Outcome
	err := f.store.UnitOfWork().WithinRide(context.Background(), b.RideID(), func(u booking.RideUnit) error {
		current, err := u.Booking(b.ID())
		if err != nil {
			return err
		}
		outcome, err = f.engine.TryReserve(context.Background(), u, current)
		return err
	})
	return outcome, err
}

func TestTryReserve_CapacityIsCheckedAtCommit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.ride(t, 3)
	a := f.pending(t, r.ID(), 2)
	b := f.pending(t, r.ID(), 2)

	// Pending bookings hold nothing, so both fit on paper.
	remaining, err := f.engine.Remaining(ctx, r.ID())
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	outcome, err := f.reserve(t, a)
	require.NoError(t, err)
	assert.Equal(t, Reserved, outcome)

	remaining, _ = f.engine.Remaining(ctx, r.ID())
	assert.Equal(t, 1, remaining)

	outcome, err = f.reserve(t, b)
	require.NoError(t, err)
	assert.Equal(t, Insufficient, outcome)

	stored, err := f.store.Bookings().FindByID(ctx, b.ID())
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, stored.Status())
}

func TestTryReserve_RefusesForeignUnit(t *testing.T) {
	f := newFixture()
	r1 := f.ride(t, 3)
	r2 := f.ride(t, 3)
	b := f.pending(t, r1.ID(), 1)

	err := f.store.UnitOfWork().WithinRide(context.Background(), r2.ID(), func(u booking.RideUnit) error {
		_, err := f.engine.TryReserve(context.Background(), u, b)
		return err
	})
	assert.Error(t, err)

	stored, _ := f.store.Bookings().FindByID(context.Background(), b.ID())
	assert.Equal(t, booking.StatusPending, stored.Status())
}

func TestTryReserve_ConcurrentAcceptsNeverOversell(t *testing.T) {
	seatSets := [][]int{
		{1, 1, 1, 1, 1, 1, 1, 1},
		{2, 2, 2, 2, 1},
		{3, 1, 2, 1, 4, 1},
		{5, 5, 5},
	}
	for _, seats := range seatSets {
		for round := 0; round < 20; round++ {
			f := newFixture()
			r := f.ride(t, 5)
			var bookings []*booking.Booking
			for _, n := range seats {
				bookings = append(bookings, f.pending(t, r.ID(), n))
			}

			outcomes := make([]Outcome, len(bookings))
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i, b := range bookings {
				wg.Add(1)
				go func(i int, b *booking.Booking) {
					defer wg.Done()
					<-start
					out, err := f.reserve(t, b)
					assert.NoError(t, err)
					outcomes[i] = out
				}(i, b)
			}
			close(start)
			wg.Wait()

			all, err := f.store.Bookings().FindByRideID(context.Background(), r.ID())
			require.NoError(t, err)
			consumed := booking.SeatsConsumed(all)
			require.LessOrEqual(t, consumed, 5, "oversold ride with seats %v", seats)

			remaining := 5 - consumed
			for i, b := range bookings {
				if outcomes[i] == Insufficient {
					// Maximal: nothing refused would still fit.
					assert.Greater(t, b.SeatsRequested(), remaining)
				}
			}
		}
	}
}
