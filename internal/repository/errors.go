package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"

	liveBookingIndex = "idx_bookings_live_passenger"
)

// translateError maps Postgres failures onto domain errors. AppErrors and
// unrecognised errors pass through, the latter wrapped with op.
func translateError(err error, op string) error {
	if err == nil {
		return nil
	}
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return domain.NewConflictError(op + ": " + pgErr.Message)
		case pgUniqueViolation:
			if pgErr.ConstraintName == liveBookingIndex {
				return domain.NewAlreadyProcessedError("passenger booking on ride", "live")
			}
			return domain.NewConflictError(op + ": duplicate " + pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
