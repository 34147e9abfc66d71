package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
	bookingDomain "github.com/Laju-Ride/service-booking/internal/domain/booking"
)

// BookingModel is the GORM model for the bookings table.
type BookingModel struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BookingNumber    string     `gorm:"uniqueIndex;not null;size:20"`
	RideID           uuid.UUID  `gorm:"type:uuid;index;not null"`
	PassengerID      uuid.UUID  `gorm:"type:uuid;index;not null"`
	SeatsRequested   int        `gorm:"not null"`
	TotalPriceCents  int64      `gorm:"not null"`
	Currency         string     `gorm:"not null;size:3;default:'MYR'"`
	Status           string     `gorm:"not null;size:30;index"`
	PaymentStatus    string     `gorm:"not null;size:20"`
	PaymentReference string     `gorm:"size:100"`
	CancelledBy      *uuid.UUID `gorm:"type:uuid"`
	CancelNote       string     `gorm:"size:500"`
	FailureReason    string     `gorm:"size:500"`
	AcceptedAt       *time.Time `gorm:""`
	RejectedAt       *time.Time `gorm:""`
	CancelledAt      *time.Time `gorm:""`
	CompletedAt      *time.Time `gorm:""`
	Version          int64      `gorm:"not null;default:1"`
	CreatedAt        time.Time  `gorm:"not null"`
	UpdatedAt        time.Time  `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (BookingModel) TableName() string {
	return "bookings"
}

// GormBookingRepository is the GORM-based read side of booking persistence.
type GormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository creates a new GormBookingRepository.
func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// FindByID retrieves a booking by its unique identifier.
func (r *GormBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	return findBooking(r.db.WithContext(ctx), id)
}

// FindByNumber retrieves a booking by its booking number.
func (r *GormBookingRepository) FindByNumber(ctx context.Context, number string) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("booking_number = ?", number).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Booking", number)
		}
		return nil, fmt.Errorf("failed to find booking by number: %w", err)
	}
	return toDomainBooking(&model)
}

// FindByRideID retrieves every booking of a ride, oldest first.
func (r *GormBookingRepository) FindByRideID(ctx context.Context, rideID uuid.UUID) ([]*bookingDomain.Booking, error) {
	return findRideBookings(r.db.WithContext(ctx), rideID)
}

// FindByPassengerID retrieves bookings for a specific passenger with pagination.
func (r *GormBookingRepository) FindByPassengerID(ctx context.Context, passengerID uuid.UUID, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).Where("passenger_id = ?", passengerID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count passenger bookings: %w", err)
	}

	var models []BookingModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).
		Where("passenger_id = ?", passengerID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to find passenger bookings: %w", err)
	}

	bookings, err := toDomainBookings(models)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// FindStaleAccepted returns accepted bookings still holding an uncaptured
// authorization that were last touched before the cutoff.
func (r *GormBookingRepository) FindStaleAccepted(ctx context.Context, before time.Time, limit int) ([]*bookingDomain.Booking, error) {
	var models []BookingModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND payment_status = ? AND updated_at < ?",
			string(bookingDomain.StatusAccepted), string(bookingDomain.PaymentAuthorized), before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find stale accepted bookings: %w", err)
	}
	return toDomainBookings(models)
}

// ListAll retrieves all bookings with pagination (admin).
func (r *GormBookingRepository) ListAll(ctx context.Context, page, limit int) ([]*bookingDomain.Booking, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	var models []BookingModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings, err := toDomainBookings(models)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

// CountByStatus returns booking counts grouped by status (admin).
func (r *GormBookingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	counts := make(map[string]int64)
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

func findBooking(db *gorm.DB, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := db.Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Booking", id.String())
		}
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return toDomainBooking(&model)
}

func findRideBookings(db *gorm.DB, rideID uuid.UUID) ([]*bookingDomain.Booking, error) {
	var models []BookingModel
	if err := db.Where("ride_id = ?", rideID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find ride bookings: %w", err)
	}
	return toDomainBookings(models)
}

// createBooking inserts a new booking inside tx.
func createBooking(tx *gorm.DB, bk *bookingDomain.Booking) error {
	if err := tx.Create(toBookingModel(bk)).Error; err != nil {
		return translateError(err, "save booking")
	}
	return nil
}

// updateBooking persists changes to an existing booking with optimistic locking.
func updateBooking(tx *gorm.DB, bk *bookingDomain.Booking) error {
	model := toBookingModel(bk)

	// Optimistic locking: only update if the version matches (current version - 1 since IncrementVersion was called)
	expectedVersion := bk.Version() - 1
	result := tx.
		Model(&BookingModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":            model.Status,
			"payment_status":    model.PaymentStatus,
			"payment_reference": model.PaymentReference,
			"cancelled_by":      model.CancelledBy,
			"cancel_note":       model.CancelNote,
			"failure_reason":    model.FailureReason,
			"accepted_at":       model.AcceptedAt,
			"rejected_at":       model.RejectedAt,
			"cancelled_at":      model.CancelledAt,
			"completed_at":      model.CompletedAt,
			"version":           model.Version,
			"updated_at":        model.UpdatedAt,
		})

	if result.Error != nil {
		return translateError(result.Error, "update booking")
	}

	if result.RowsAffected == 0 {
		return domain.NewConflictError("booking was modified by another transaction")
	}

	return nil
}

// --- Conversion Helpers ---

func toBookingModel(bk *bookingDomain.Booking) *BookingModel {
	return &BookingModel{
		ID:               bk.ID(),
		BookingNumber:    bk.BookingNumber(),
		RideID:           bk.RideID(),
		PassengerID:      bk.PassengerID(),
		SeatsRequested:   bk.SeatsRequested(),
		TotalPriceCents:  bk.TotalPriceCents(),
		Currency:         bk.Currency(),
		Status:           string(bk.Status()),
		PaymentStatus:    string(bk.PaymentStatus()),
		PaymentReference: bk.PaymentReference(),
		CancelledBy:      bk.CancelledBy(),
		CancelNote:       bk.CancelNote(),
		FailureReason:    bk.FailureReason(),
		AcceptedAt:       bk.AcceptedAt(),
		RejectedAt:       bk.RejectedAt(),
		CancelledAt:      bk.CancelledAt(),
		CompletedAt:      bk.CompletedAt(),
		Version:          bk.Version(),
		CreatedAt:        bk.CreatedAt(),
		UpdatedAt:        bk.UpdatedAt(),
	}
}

func toDomainBooking(m *BookingModel) (*bookingDomain.Booking, error) {
	status, err := bookingDomain.ParseBookingStatus(m.Status)
	if err != nil {
		return nil, err
	}
	paymentStatus, err := bookingDomain.ParsePaymentStatus(m.PaymentStatus)
	if err != nil {
		return nil, err
	}

	return bookingDomain.ReconstructBooking(
		m.ID,
		m.BookingNumber,
		m.RideID,
		m.PassengerID,
		m.SeatsRequested,
		m.TotalPriceCents,
		m.Currency,
		status,
		paymentStatus,
		m.PaymentReference,
		m.CancelledBy,
		m.CancelNote,
		m.FailureReason,
		m.AcceptedAt,
		m.RejectedAt,
		m.CancelledAt,
		m.CompletedAt,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	), nil
}

func toDomainBookings(models []BookingModel) ([]*bookingDomain.Booking, error) {
	bookings := make([]*bookingDomain.Booking, len(models))
	for i := range models {
		bk, err := toDomainBooking(&models[i])
		if err != nil {
			return nil, err
		}
		bookings[i] = bk
	}
	return bookings, nil
}
