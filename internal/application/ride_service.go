package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
	bookingDomain "github.com/Laju-Ride/service-booking/internal/domain/booking"
	rideDomain "github.com/Laju-Ride/service-booking/internal/domain/ride"
	"github.com/Laju-Ride/service-booking/internal/inventory"
	"github.com/Laju-Ride/service-booking/internal/payment"
)

// CreateRideRequest is the request DTO for offering a ride.
type CreateRideRequest struct {
	Origin            string    `json:"origin" binding:"required" validate:"required,max=200"`
	Destination       string    `json:"destination" binding:"required" validate:"required,max=200"`
	DepartureAt       time.Time `json:"departure_at" binding:"required" validate:"required"`
	Capacity          int       `json:"capacity" binding:"min=0" validate:"min=0,max=60"`
	PricePerSeatCents int64     `json:"price_per_seat_cents" binding:"required,gt=0" validate:"gt=0"`
	Currency          string    `json:"currency" validate:"omitempty,len=3"`
	Notes             string    `json:"notes" validate:"max=1000"`
}

// UpdateCapacityRequest is the request DTO for changing a ride's capacity.
type UpdateCapacityRequest struct {
	Capacity int `json:"capacity" binding:"min=0" validate:"min=0,max=60"`
}

// RideDTO is the API response representation of a ride.
type RideDTO struct {
	ID                uuid.UUID  `json:"id"`
	DriverID          uuid.UUID  `json:"driver_id"`
	Origin            string     `json:"origin"`
	Destination       string     `json:"destination"`
	DepartureAt       time.Time  `json:"departure_at"`
	CapacityOffered   int        `json:"capacity_offered"`
	RemainingSeats    int        `json:"remaining_seats"`
	PricePerSeatCents int64      `json:"price_per_seat_cents"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	Notes             string     `json:"notes,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// RideService implements the ride inventory use cases.
type RideService struct {
	rides          rideDomain.RideRepository
	uow            bookingDomain.UnitOfWork
	engine         *inventory.Engine
	gate           payment.Gate
	paymentTimeout time.Duration
	attempts       int
	logger         *zap.Logger
}

// NewRideService creates a new RideService.
func NewRideService(
	rides rideDomain.RideRepository,
	uow bookingDomain.UnitOfWork,
	engine *inventory.Engine,
	gate payment.Gate,
	cfg BookingConfig,
	logger *zap.Logger,
) *RideService {
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 5 * time.Second
	}
	return &RideService{
		rides:          rides,
		uow:            uow,
		engine:         engine,
		gate:           gate,
		paymentTimeout: cfg.PaymentTimeout,
		attempts:       cfg.ConflictAttempts,
		logger:         logger,
	}
}

// CreateRide offers a new ride for the given driver.
func (s *RideService) CreateRide(ctx context.Context, driverID uuid.UUID, req CreateRideRequest) (*RideDTO, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !req.DepartureAt.After(time.Now()) {
		return nil, domain.NewValidationError("departure time must be in the future")
	}

	r, err := rideDomain.NewRide(
		driverID,
		req.Origin, req.Destination,
		req.DepartureAt,
		req.Capacity,
		req.PricePerSeatCents,
		req.Currency,
		req.Notes,
	)
	if err != nil {
		return nil, err
	}

	if err := s.rides.Save(ctx, r); err != nil {
		s.logger.Error("failed to create ride", zap.Error(err))
		return nil, fmt.Errorf("failed to create ride: %w", err)
	}

	s.logger.Info("ride created",
		zap.String("ride_id", r.ID().String()),
		zap.String("driver_id", driverID.String()),
		zap.Int("capacity", r.CapacityOffered()),
	)
	result := toRideDTO(r, r.CapacityOffered())
	return &result, nil
}

// GetRide returns a ride with its derived remaining seats.
func (s *RideService) GetRide(ctx context.Context, rideID uuid.UUID) (*RideDTO, error) {
	r, err := s.rides.FindByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	return s.withRemaining(ctx, r)
}

// ListActiveRides returns active rides ordered by departure.
func (s *RideService) ListActiveRides(ctx context.Context, page, limit int) (*domain.PaginatedResult[RideDTO], error) {
	rides, total, err := s.rides.FindActive(ctx, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rides: %w", err)
	}
	return s.page(ctx, rides, total, page, limit)
}

// ListDriverRides returns the rides offered by a driver.
func (s *RideService) ListDriverRides(ctx context.Context, driverID uuid.UUID, page, limit int) (*domain.PaginatedResult[RideDTO], error) {
	rides, total, err := s.rides.FindByDriverID(ctx, driverID, page, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list driver rides: %w", err)
	}
	return s.page(ctx, rides, total, page, limit)
}

// UpdateCapacity changes the offered seats. It is refused once any booking
// of the ride holds seats.
func (s *RideService) UpdateCapacity(ctx context.Context, rideID, driverID uuid.UUID, req UpdateCapacityRequest) (*RideDTO, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var (
		updated   *rideDomain.Ride
		remaining int
	)
	err := s.inRide(ctx, rideID, func(u bookingDomain.RideUnit) error {
		r := u.Ride()
		if !r.IsOwnedBy(driverID) {
			return domain.NewUnauthorizedError("ride does not belong to this driver")
		}
		bookings, err := u.Bookings()
		if err != nil {
			return err
		}
		consumed := bookingDomain.SeatsConsumed(bookings)
		if err := r.ChangeCapacity(req.Capacity, consumed); err != nil {
			return err
		}
		r.IncrementVersion()
		if err := u.UpdateRide(r); err != nil {
			return err
		}
		updated = r
		remaining = r.CapacityOffered() - consumed
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ride capacity updated",
		zap.String("ride_id", rideID.String()),
		zap.Int("capacity", updated.CapacityOffered()),
	)
	result := toRideDTO(updated, remaining)
	return &result, nil
}

// CancelRide withdraws a ride and cancels every live booking on it in the
// same unit. Each cancelled booking gets its own event.
func (s *RideService) CancelRide(ctx context.Context, rideID, driverID uuid.UUID, reason string) (*RideDTO, error) {
	var (
		updated  *rideDomain.Ride
		heldRefs map[uuid.UUID]string
	)
	err := s.inRide(ctx, rideID, func(u bookingDomain.RideUnit) error {
		heldRefs = make(map[uuid.UUID]string)
		r := u.Ride()
		if !r.IsOwnedBy(driverID) {
			return domain.NewUnauthorizedError("ride does not belong to this driver")
		}
		if err := r.Cancel(); err != nil {
			return err
		}

		bookings, err := u.Bookings()
		if err != nil {
			return err
		}
		cancelled := 0
		for _, b := range bookings {
			if !b.Status().CanBeCancelled() {
				continue
			}
			seatsReleased := 0
			if b.Status().ConsumesSeats() {
				seatsReleased = b.SeatsRequested()
			}
			if err := b.Cancel(driverID, reason); err != nil {
				return err
			}
			if b.PaymentStatus() == bookingDomain.PaymentAuthorized {
				heldRefs[b.ID()] = b.PaymentReference()
				if err := b.RecordRefund(); err != nil {
					return err
				}
			}
			b.IncrementVersion()
			if err := u.UpdateBooking(b); err != nil {
				return err
			}
			if err := u.Emit(bookingDomain.NewBookingEvent(bookingDomain.EventBookingCancelled, b, driverID, map[string]any{
				"seats_released":    seatsReleased,
				"cancelled_by_role": "driver",
				"reason":            reason,
				"ride_cancelled":    true,
			})); err != nil {
				return err
			}
			cancelled++
		}

		r.IncrementVersion()
		if err := u.UpdateRide(r); err != nil {
			return err
		}
		updated = r
		return u.Emit(bookingDomain.NewRideEvent(bookingDomain.EventRideCancelled, r.ID(), driverID, map[string]any{
			"cancelled_bookings": cancelled,
			"reason":             reason,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.releaseHolds(ctx, heldRefs)
	s.logger.Info("ride cancelled",
		zap.String("ride_id", rideID.String()),
		zap.Int("released_holds", len(heldRefs)),
	)
	result := toRideDTO(updated, updated.CapacityOffered())
	return &result, nil
}

// CompleteRide concludes a ride: accepted bookings complete, pending ones are
// rejected.
func (s *RideService) CompleteRide(ctx context.Context, rideID, driverID uuid.UUID) (*RideDTO, error) {
	var (
		updated   *rideDomain.Ride
		remaining int
		heldRefs  map[uuid.UUID]string
	)
	err := s.inRide(ctx, rideID, func(u bookingDomain.RideUnit) error {
		heldRefs = make(map[uuid.UUID]string)
		r := u.Ride()
		if !r.IsOwnedBy(driverID) {
			return domain.NewUnauthorizedError("ride does not belong to this driver")
		}
		if err := r.Complete(); err != nil {
			return err
		}

		bookings, err := u.Bookings()
		if err != nil {
			return err
		}
		completed := 0
		for _, b := range bookings {
			var ev bookingDomain.Event
			switch b.Status() {
			case bookingDomain.StatusAccepted:
				if err := b.Complete(); err != nil {
					return err
				}
				completed++
				ev = bookingDomain.NewBookingEvent(bookingDomain.EventBookingCompleted, b, driverID, nil)
			case bookingDomain.StatusPending:
				if err := b.Reject("ride completed"); err != nil {
					return err
				}
				if b.PaymentStatus() == bookingDomain.PaymentAuthorized {
					heldRefs[b.ID()] = b.PaymentReference()
					if err := b.RecordRefund(); err != nil {
						return err
					}
				}
				ev = bookingDomain.NewBookingEvent(bookingDomain.EventBookingRejected, b, driverID, map[string]any{
					"reason": "ride completed",
				})
			default:
				continue
			}
			b.IncrementVersion()
			if err := u.UpdateBooking(b); err != nil {
				return err
			}
			if err := u.Emit(ev); err != nil {
				return err
			}
		}

		r.IncrementVersion()
		if err := u.UpdateRide(r); err != nil {
			return err
		}
		updated = r
		remaining = bookingDomain.RemainingSeats(r.CapacityOffered(), bookings)
		return u.Emit(bookingDomain.NewRideEvent(bookingDomain.EventRideCompleted, r.ID(), driverID, map[string]any{
			"completed_bookings": completed,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.releaseHolds(ctx, heldRefs)
	result := toRideDTO(updated, remaining)
	return &result, nil
}

func (s *RideService) inRide(ctx context.Context, rideID uuid.UUID, fn func(bookingDomain.RideUnit) error) error {
	return withConflictRetry(ctx, s.attempts, func() error {
		return s.uow.WithinRide(ctx, rideID, fn)
	})
}

func (s *RideService) releaseHolds(ctx context.Context, refs map[uuid.UUID]string) {
	ctx = context.WithoutCancel(ctx)
	for bookingID, ref := range refs {
		gctx, cancel := context.WithTimeout(ctx, s.paymentTimeout)
		if err := s.gate.Release(gctx, ref); err != nil {
			s.logger.Warn("failed to release payment hold",
				zap.String("booking_id", bookingID.String()),
				zap.String("reference", ref),
				zap.Error(err),
			)
		}
		cancel()
	}
}

func (s *RideService) withRemaining(ctx context.Context, r *rideDomain.Ride) (*RideDTO, error) {
	remaining, err := s.engine.Remaining(ctx, r.ID())
	if err != nil {
		return nil, err
	}
	result := toRideDTO(r, remaining)
	return &result, nil
}

func (s *RideService) page(ctx context.Context, rides []*rideDomain.Ride, total int64, page, limit int) (*domain.PaginatedResult[RideDTO], error) {
	dtos := make([]RideDTO, len(rides))
	for i, r := range rides {
		dto, err := s.withRemaining(ctx, r)
		if err != nil {
			return nil, err
		}
		dtos[i] = *dto
	}
	result := domain.NewPaginatedResult(dtos, total, page, limit)
	return &result, nil
}

func toRideDTO(r *rideDomain.Ride, remaining int) RideDTO {
	return RideDTO{
		ID:                r.ID(),
		DriverID:          r.DriverID(),
		Origin:            r.Origin(),
		Destination:       r.Destination(),
		DepartureAt:       r.DepartureAt(),
		CapacityOffered:   r.CapacityOffered(),
		RemainingSeats:    remaining,
		PricePerSeatCents: r.PricePerSeatCents(),
		Currency:          r.Currency(),
		Status:            r.Status().String(),
		Notes:             r.Notes(),
		CancelledAt:       r.CancelledAt(),
		CompletedAt:       r.CompletedAt(),
		CreatedAt:         r.CreatedAt(),
		UpdatedAt:         r.UpdatedAt(),
	}
}
