package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
	rideDomain "github.com/Laju-Ride/service-booking/internal/domain/ride"
)

// RideModel is the GORM model for the rides table.
type RideModel struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	DriverID          uuid.UUID  `gorm:"type:uuid;index;not null"`
	Origin            string     `gorm:"not null;size:255"`
	Destination       string     `gorm:"not null;size:255"`
	DepartureAt       time.Time  `gorm:"not null"`
	CapacityOffered   int        `gorm:"not null"`
	PricePerSeatCents int64      `gorm:"not null"`
	Currency          string     `gorm:"not null;size:3;default:'MYR'"`
	Status            string     `gorm:"not null;size:20"`
	Notes             string     `gorm:"size:1000"`
	CancelledAt       *time.Time `gorm:""`
	CompletedAt       *time.Time `gorm:""`
	Version           int64      `gorm:"not null;default:1"`
	CreatedAt         time.Time  `gorm:"not null"`
	UpdatedAt         time.Time  `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (RideModel) TableName() string {
	return "rides"
}

// GormRideRepository is the GORM-based implementation of RideRepository.
type GormRideRepository struct {
	db *gorm.DB
}

// NewGormRideRepository creates a new GormRideRepository.
func NewGormRideRepository(db *gorm.DB) *GormRideRepository {
	return &GormRideRepository{db: db}
}

// FindByID retrieves a ride by its unique identifier.
func (r *GormRideRepository) FindByID(ctx context.Context, id uuid.UUID) (*rideDomain.Ride, error) {
	var model RideModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Ride", id.String())
		}
		return nil, fmt.Errorf("failed to find ride by ID: %w", err)
	}
	return toDomainRide(&model)
}

// FindActive retrieves active rides, soonest departure first.
func (r *GormRideRepository) FindActive(ctx context.Context, page, limit int) ([]*rideDomain.Ride, int64, error) {
	return r.findPage(ctx, "status = ?", string(rideDomain.StatusActive), "departure_at ASC", page, limit)
}

// FindByDriverID retrieves rides offered by a driver.
func (r *GormRideRepository) FindByDriverID(ctx context.Context, driverID uuid.UUID, page, limit int) ([]*rideDomain.Ride, int64, error) {
	return r.findPage(ctx, "driver_id = ?", driverID, "departure_at DESC", page, limit)
}

// Save persists a new ride.
func (r *GormRideRepository) Save(ctx context.Context, rd *rideDomain.Ride) error {
	if err := r.db.WithContext(ctx).Create(toRideModel(rd)).Error; err != nil {
		return fmt.Errorf("failed to save ride: %w", err)
	}
	return nil
}

func (r *GormRideRepository) findPage(ctx context.Context, where string, arg interface{}, order string, page, limit int) ([]*rideDomain.Ride, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&RideModel{}).Where(where, arg).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count rides: %w", err)
	}

	var models []RideModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).
		Where(where, arg).
		Order(order).
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to find rides: %w", err)
	}

	rides := make([]*rideDomain.Ride, len(models))
	for i := range models {
		rd, err := toDomainRide(&models[i])
		if err != nil {
			return nil, 0, err
		}
		rides[i] = rd
	}
	return rides, total, nil
}

// updateRide persists ride changes inside tx with optimistic locking.
func updateRide(tx *gorm.DB, rd *rideDomain.Ride) error {
	model := toRideModel(rd)
	result := tx.
		Model(&RideModel{}).
		Where("id = ? AND version = ?", model.ID, rd.Version()-1).
		Updates(map[string]interface{}{
			"capacity_offered": model.CapacityOffered,
			"status":           model.Status,
			"notes":            model.Notes,
			"cancelled_at":     model.CancelledAt,
			"completed_at":     model.CompletedAt,
			"version":          model.Version,
			"updated_at":       model.UpdatedAt,
		})
	if result.Error != nil {
		return translateError(result.Error, "update ride")
	}
	if result.RowsAffected == 0 {
		return domain.NewConflictError("ride was modified by another transaction")
	}
	return nil
}

// --- Conversion Helpers ---

func toRideModel(rd *rideDomain.Ride) *RideModel {
	return &RideModel{
		ID:                rd.ID(),
		DriverID:          rd.DriverID(),
		Origin:            rd.Origin(),
		Destination:       rd.Destination(),
		DepartureAt:       rd.DepartureAt(),
		CapacityOffered:   rd.CapacityOffered(),
		PricePerSeatCents: rd.PricePerSeatCents(),
		Currency:          rd.Currency(),
		Status:            string(rd.Status()),
		Notes:             rd.Notes(),
		CancelledAt:       rd.CancelledAt(),
		CompletedAt:       rd.CompletedAt(),
		Version:           rd.Version(),
		CreatedAt:         rd.CreatedAt(),
		UpdatedAt:         rd.UpdatedAt(),
	}
}

func toDomainRide(m *RideModel) (*rideDomain.Ride, error) {
	status, err := rideDomain.ParseRideStatus(m.Status)
	if err != nil {
		return nil, err
	}
	return rideDomain.ReconstructRide(
		m.ID,
		m.DriverID,
		m.Origin,
		m.Destination,
		m.DepartureAt,
		m.CapacityOffered,
		m.PricePerSeatCents,
		m.Currency,
		status,
		m.Notes,
		m.CancelledAt,
		m.CompletedAt,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	), nil
}
