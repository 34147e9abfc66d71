package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
	bookingDomain "github.com/Laju-Ride/service-booking/internal/domain/booking"
	rideDomain "github.com/Laju-Ride/service-booking/internal/domain/ride"
)

// GormUnitOfWork runs each ride unit in one Postgres transaction holding the
// ride row's FOR UPDATE lock.
type GormUnitOfWork struct {
	db *gorm.DB
}

// NewGormUnitOfWork creates a new GormUnitOfWork.
func NewGormUnitOfWork(db *gorm.DB) *GormUnitOfWork {
	return &GormUnitOfWork{db: db}
}

// WithinRide locks the ride row, runs fn and commits if fn returns nil.
func (u *GormUnitOfWork) WithinRide(ctx context.Context, rideID uuid.UUID, fn func(bookingDomain.RideUnit) error) error {
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model RideModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", rideID).
			First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NewNotFoundError("Ride", rideID.String())
			}
			return translateError(err, "lock ride")
		}

		rd, err := toDomainRide(&model)
		if err != nil {
			return err
		}
		return fn(&gormRideUnit{tx: tx, ride: rd})
	})
	return translateError(err, "commit ride unit")
}

type gormRideUnit struct {
	tx   *gorm.DB
	ride *rideDomain.Ride
}

func (u *gormRideUnit) Ride() *rideDomain.Ride { return u.ride }

func (u *gormRideUnit) Bookings() ([]*bookingDomain.Booking, error) {
	return findRideBookings(u.tx, u.ride.ID())
}

func (u *gormRideUnit) Booking(id uuid.UUID) (*bookingDomain.Booking, error) {
	bk, err := findBooking(u.tx, id)
	if err != nil {
		return nil, err
	}
	if bk.RideID() != u.ride.ID() {
		return nil, domain.NewNotFoundError("Booking", id.String())
	}
	return bk, nil
}

func (u *gormRideUnit) SaveBooking(bk *bookingDomain.Booking) error {
	if bk.RideID() != u.ride.ID() {
		return fmt.Errorf("booking %s does not belong to locked ride %s", bk.ID(), u.ride.ID())
	}
	return createBooking(u.tx, bk)
}

func (u *gormRideUnit) UpdateBooking(bk *bookingDomain.Booking) error {
	if bk.RideID() != u.ride.ID() {
		return fmt.Errorf("booking %s does not belong to locked ride %s", bk.ID(), u.ride.ID())
	}
	return updateBooking(u.tx, bk)
}

func (u *gormRideUnit) UpdateRide(rd *rideDomain.Ride) error {
	if rd.ID() != u.ride.ID() {
		return fmt.Errorf("ride %s is not the locked ride %s", rd.ID(), u.ride.ID())
	}
	if err := updateRide(u.tx, rd); err != nil {
		return err
	}
	u.ride = rd
	return nil
}

func (u *gormRideUnit) Emit(events ...bookingDomain.Event) error {
	if len(events) == 0 {
		return nil
	}
	models := make([]OutboxEventModel, len(events))
	for i, ev := range events {
		m, err := toOutboxModel(ev)
		if err != nil {
			return err
		}
		models[i] = *m
	}
	if err := u.tx.Create(&models).Error; err != nil {
		return translateError(err, "append outbox events")
	}
	return nil
}
