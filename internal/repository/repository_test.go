package repository

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
	bookingDomain "github.com/Laju-Ride/service-booking/internal/domain/booking"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind domain.Kind
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, domain.KindConcurrencyConflict},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, domain.KindConcurrencyConflict},
		{"live booking index", &pgconn.PgError{Code: "23505", ConstraintName: "idx_bookings_live_passenger"}, domain.KindAlreadyProcessed},
		{"other unique index", &pgconn.PgError{Code: "23505", ConstraintName: "bookings_pkey"}, domain.KindConcurrencyConflict},
		{"app error passes through", domain.NewCapacityExceededError(3, 1), domain.KindCapacityExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, domain.KindOf(translateError(tt.err, "op")))
		})
	}
}

func TestTranslateError_WrapsUnknown(t *testing.T) {
	base := errors.New("connection reset")
	err := translateError(base, "update booking")
	require.Error(t, err)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, domain.Kind(""), domain.KindOf(err))
	assert.NoError(t, translateError(nil, "noop"))
}

func TestBookingModelConversion(t *testing.T) {
	bk, err := bookingDomain.NewBooking(uuid.New(), uuid.New(), 2, 3000, "MYR")
	require.NoError(t, err)
	require.NoError(t, bk.RecordAuthorization("auth_1"))
	require.NoError(t, bk.Accept())
	bk.IncrementVersion()

	got, err := toDomainBooking(toBookingModel(bk))
	require.NoError(t, err)
	assert.Equal(t, bk.ID(), got.ID())
	assert.Equal(t, bookingDomain.StatusAccepted, got.Status())
	assert.Equal(t, bookingDomain.PaymentAuthorized, got.PaymentStatus())
	assert.Equal(t, "auth_1", got.PaymentReference())
	assert.Equal(t, int64(2), got.Version())
	assert.NotNil(t, got.AcceptedAt())
}

func TestToDomainBooking_UnknownStatus(t *testing.T) {
	bk, err := bookingDomain.NewBooking(uuid.New(), uuid.New(), 1, 1500, "MYR")
	require.NoError(t, err)
	m := toBookingModel(bk)
	m.Status = "teleported"

	_, err = toDomainBooking(m)
	assert.Error(t, err)
}

func TestOutboxModel_RideEventHasNullBooking(t *testing.T) {
	ev := bookingDomain.NewRideEvent(bookingDomain.EventRideCancelled, uuid.New(), uuid.Nil, map[string]any{"reason": "flat tyre"})

	m, err := toOutboxModel(ev)
	require.NoError(t, err)
	assert.Nil(t, m.BookingID)
	assert.Nil(t, m.ActorID)
	assert.JSONEq(t, `{"reason":"flat tyre"}`, string(m.Payload))

	back, err := toDomainEvent(m)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, back.BookingID)
	assert.Equal(t, ev.RideID, back.RideID)
	assert.Equal(t, "flat tyre", back.Payload["reason"])
}
