package application

import (
	"context"
	"errors"
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

// RequestBookingRequest holds the data needed to request seats on a ride.
type RequestBookingRequest struct {
	RideID uuid.UUID `json:"ride_id" binding:"required" validate:"required"`
	Seats  int       `json:"seats" binding:"required,min=1" validate:"min=1"`
}

// BookingDTO is the response representation of a booking.
type BookingDTO struct {
	ID               uuid.UUID  `json:"id"`
	BookingNumber    string     `json:"booking_number"`
	RideID           uuid.UUID  `json:"ride_id"`
	PassengerID      uuid.UUID  `json:"passenger_id"`
	SeatsRequested   int        `json:"seats_requested"`
	TotalPriceCents  int64      `json:"total_price_cents"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	PaymentStatus    string     `json:"payment_status"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	CancelledBy      *uuid.UUID `json:"cancelled_by,omitempty"`
	CancelNote       string     `json:"cancel_note,omitempty"`
	FailureReason    string     `json:"failure_reason,omitempty"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty"`
	RejectedAt       *time.Time `json:"rejected_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// BookingConfig tunes the lifecycle.
type BookingConfig struct {
	// RequireAuthorization makes accept hold funds before any seat is reserved.
	RequireAuthorization bool
	// PaymentTimeout bounds every payment gate call.
	PaymentTimeout time.Duration
	// ConflictAttempts bounds retries of a unit that hit a concurrency conflict.
	ConflictAttempts int
}

// BookingService runs the booking lifecycle. Every mutation goes through a
// ride-locked unit of work, and every committed transition writes its event
// to the outbox in that same unit.
type BookingService struct {
	rides   rideDomain.RideRepository
	repo    bookingDomain.BookingRepository
	uow     bookingDomain.UnitOfWork
	engine  *inventory.Engine
	gate    payment.Gate
	pricing bookingDomain.PricingStrategy
	cfg     BookingConfig
	logger  *zap.Logger
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	rides rideDomain.RideRepository,
	repo bookingDomain.BookingRepository,
	uow bookingDomain.UnitOfWork,
	engine *inventory.Engine,
	gate payment.Gate,
	pricing bookingDomain.PricingStrategy,
	cfg BookingConfig,
	logger *zap.Logger,
) *BookingService {
	if cfg.PaymentTimeout <= 0 {
		cfg.PaymentTimeout = 5 * time.Second
	}
	if cfg.ConflictAttempts < 1 {
		cfg.ConflictAttempts = 3
	}
	return &BookingService{
		rides:   rides,
		repo:    repo,
		uow:     uow,
		engine:  engine,
		gate:    gate,
		pricing: pricing,
		cfg:     cfg,
		logger:  logger,
	}
}

// RequestBooking creates a pending booking. The capacity check is advisory:
// pending bookings reserve nothing, so several may together exceed capacity.
func (s *BookingService) RequestBooking(ctx context.Context, passengerID uuid.UUID, req RequestBookingRequest) (*BookingDTO, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var bk *bookingDomain.Booking
	err := s.inRide(ctx, req.RideID, func(u bookingDomain.RideUnit) error {
		r := u.Ride()
		if !r.IsActive() {
			return domain.NewRideNotAvailableError(r.ID().String(), r.Status().String())
		}
		if r.IsOwnedBy(passengerID) {
			return domain.NewValidationError("drivers cannot book seats on their own ride")
		}

		existing, err := u.Bookings()
		if err != nil {
			return err
		}
		for _, b := range existing {
			if b.PassengerID() == passengerID && b.IsLive() {
				return domain.NewAlreadyProcessedError("passenger booking on ride "+r.ID().String(), b.Status().String())
			}
		}
		remaining := bookingDomain.RemainingSeats(r.CapacityOffered(), existing)
		if req.Seats > remaining {
			return domain.NewCapacityExceededError(req.Seats, remaining)
		}

		priceCents, err := s.pricing.Calculate(bookingDomain.PricingParams{
			Seats:             req.Seats,
			PricePerSeatCents: r.PricePerSeatCents(),
		})
		if err != nil {
			return domain.NewValidationError(fmt.Sprintf("pricing error: %v", err))
		}

		bk, err = bookingDomain.NewBooking(r.ID(), passengerID, req.Seats, priceCents, r.Currency())
		if err != nil {
			return err
		}
		if err := u.SaveBooking(bk); err != nil {
			return err
		}
		return u.Emit(bookingDomain.NewBookingEvent(bookingDomain.EventBookingRequested, bk, passengerID, nil))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking requested",
		zap.String("booking_id", bk.ID().String()),
		zap.String("ride_id", bk.RideID().String()),
		zap.Int("seats", bk.SeatsRequested()),
	)
	result := toBookingDTO(bk)
	return &result, nil
}

// AuthorizePayment earmarks the booking's price with the payment gate.
func (s *BookingService) AuthorizePayment(ctx context.Context, bookingID, passengerID uuid.UUID) (*BookingDTO, error) {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if bk.PassengerID() != passengerID {
		return nil, domain.NewUnauthorizedError("booking does not belong to this passenger")
	}
	if !bk.IsLive() {
		return nil, domain.NewAlreadyProcessedError("booking "+bk.ID().String(), bk.Status().String())
	}
	if bk.PaymentStatus() == bookingDomain.PaymentAuthorized || bk.PaymentStatus() == bookingDomain.PaymentCaptured {
		result := toBookingDTO(bk)
		return &result, nil
	}

	bk, err = s.holdFunds(ctx, bk)
	if err != nil {
		return nil, err
	}
	result := toBookingDTO(bk)
	return &result, nil
}

// AcceptBooking lets the ride's driver accept a pending booking. Seats are
// reserved atomically under the ride lock; funds are captured afterwards and
// a failed capture rolls the reservation back before returning.
func (s *BookingService) AcceptBooking(ctx context.Context, bookingID, driverID uuid.UUID) (*BookingDTO, error) {
	bk, err := s.loadForDriver(ctx, bookingID, driverID)
	if err != nil {
		return nil, err
	}
	if bk.Status() != bookingDomain.StatusPending {
		return nil, domain.NewAlreadyProcessedError("booking "+bk.ID().String(), bk.Status().String())
	}

	if s.cfg.RequireAuthorization && bk.PaymentStatus() != bookingDomain.PaymentAuthorized {
		if bk, err = s.holdFunds(ctx, bk); err != nil {
			return nil, err
		}
	}

	err = s.inRide(ctx, bk.RideID(), func(u bookingDomain.RideUnit) error {
		current, err := u.Booking(bookingID)
		if err != nil {
			return err
		}
		if current.Status() != bookingDomain.StatusPending {
			return domain.NewAlreadyProcessedError("booking "+current.ID().String(), current.Status().String())
		}

		outcome, err := s.engine.TryReserve(ctx, u, current)
		if err != nil {
			return err
		}
		if outcome == inventory.Insufficient {
			remaining, err := s.engine.RemainingIn(u)
			if err != nil {
				return err
			}
			return domain.NewCapacityExceededError(current.SeatsRequested(), remaining)
		}

		// Without held funds there is nothing to capture, so the accept is final here.
		if current.PaymentStatus() != bookingDomain.PaymentAuthorized {
			if err := u.Emit(bookingDomain.NewBookingEvent(bookingDomain.EventBookingAccepted, current, driverID, nil)); err != nil {
				return err
			}
		}
		bk = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("seats reserved",
		zap.String("booking_id", bk.ID().String()),
		zap.String("ride_id", bk.RideID().String()),
		zap.Int("seats", bk.SeatsRequested()),
	)

	if bk.PaymentStatus() == bookingDomain.PaymentAuthorized {
		if bk, err = s.settleAccepted(ctx, bk, driverID); err != nil {
			return nil, err
		}
	}

	result := toBookingDTO(bk)
	return &result, nil
}

// RejectBooking lets the ride's driver decline a pending booking.
func (s *BookingService) RejectBooking(ctx context.Context, bookingID, driverID uuid.UUID, reason string) (*BookingDTO, error) {
	bk, err := s.loadForDriver(ctx, bookingID, driverID)
	if err != nil {
		return nil, err
	}
	if bk.Status() != bookingDomain.StatusPending {
		return nil, domain.NewAlreadyProcessedError("booking "+bk.ID().String(), bk.Status().String())
	}

	var heldRef string
	err = s.inRide(ctx, bk.RideID(), func(u bookingDomain.RideUnit) error {
		current, err := u.Booking(bookingID)
		if err != nil {
			return err
		}
		heldRef = ""
		if err := current.Reject(reason); err != nil {
			return err
		}
		if current.PaymentStatus() == bookingDomain.PaymentAuthorized {
			heldRef = current.PaymentReference()
			if err := current.RecordRefund(); err != nil {
				return err
			}
		}
		current.IncrementVersion()
		if err := u.UpdateBooking(current); err != nil {
			return err
		}
		bk = current
		return u.Emit(bookingDomain.NewBookingEvent(bookingDomain.EventBookingRejected, current, driverID, map[string]any{
			"reason": reason,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.releaseHold(ctx, bk.ID(), heldRef)
	result := toBookingDTO(bk)
	return &result, nil
}

// CancelBooking cancels a pending or accepted booking on behalf of its
// passenger or the ride's driver. Seats of an accepted booking become
// available again because remaining capacity is derived.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, actorID uuid.UUID, reason string) (*BookingDTO, error) {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	r, err := s.rides.FindByID(ctx, bk.RideID())
	if err != nil {
		return nil, err
	}

	role := ""
	switch {
	case bk.PassengerID() == actorID:
		role = "passenger"
	case r.IsOwnedBy(actorID):
		role = "driver"
	default:
		return nil, domain.NewUnauthorizedError("only the passenger or the ride's driver can cancel this booking")
	}
	if !bk.Status().CanBeCancelled() {
		return nil, domain.NewAlreadyProcessedError("booking "+bk.ID().String(), bk.Status().String())
	}

	var heldRef string
	err = s.inRide(ctx, bk.RideID(), func(u bookingDomain.RideUnit) error {
		current, err := u.Booking(bookingID)
		if err != nil {
			return err
		}
		heldRef = ""
		seatsReleased := 0
		if current.Status().ConsumesSeats() {
			seatsReleased = current.SeatsRequested()
		}
		if err := current.Cancel(actorID, reason); err != nil {
			return err
		}
		if current.PaymentStatus() == bookingDomain.PaymentAuthorized {
			heldRef = current.PaymentReference()
			if err := current.RecordRefund(); err != nil {
				return err
			}
		}
		current.IncrementVersion()
		if err := u.UpdateBooking(current); err != nil {
			return err
		}
		bk = current
		return u.Emit(bookingDomain.NewBookingEvent(bookingDomain.EventBookingCancelled, current, actorID, map[string]any{
			"seats_released":    seatsReleased,
			"cancelled_by_role": role,
			"reason":            reason,
		}))
	})
	if err != nil {
		return nil, err
	}

	s.releaseHold(ctx, bk.ID(), heldRef)
	s.logger.Info("booking cancelled",
		zap.String("booking_id", bk.ID().String()),
		zap.String("cancelled_by_role", role),
	)
	result := toBookingDTO(bk)
	return &result, nil
}

// CompleteBooking marks an accepted booking as completed after the trip.
// Its seats stay counted as consumed.
func (s *BookingService) CompleteBooking(ctx context.Context, bookingID uuid.UUID) (*BookingDTO, error) {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	err = s.inRide(ctx, bk.RideID(), func(u bookingDomain.RideUnit) error {
		current, err := u.Booking(bookingID)
		if err != nil {
			return err
		}
		if err := current.Complete(); err != nil {
			return err
		}
		current.IncrementVersion()
		if err := u.UpdateBooking(current); err != nil {
			return err
		}
		bk = current
		return u.Emit(bookingDomain.NewBookingEvent(bookingDomain.EventBookingCompleted, current, uuid.Nil, nil))
	})
	if err != nil {
		return nil, err
	}

	result := toBookingDTO(bk)
	return &result, nil
}

// RefundBooking returns captured funds of a completed or cancelled booking.
// Seat accounting is untouched.
func (s *BookingService) RefundBooking(ctx context.Context, bookingID, actorID uuid.UUID) (*BookingDTO, error) {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := checkRefundable(bk); err != nil {
		return nil, err
	}

	gctx, cancel := s.gateContext(ctx)
	err = s.gate.Refund(gctx, bk.PaymentReference(), bk.TotalPriceCents())
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to refund booking %s: %w", bk.ID(), err)
	}

	err = s.inRide(ctx, bk.RideID(), func(u bookingDomain.RideUnit) error {
		current, err := u.Booking(bookingID)
		if err != nil {
			return err
		}
		if err := checkRefundable(current); err != nil {
			return err
		}
		if err := current.RecordRefund(); err != nil {
			return err
		}
		current.IncrementVersion()
		if err := u.UpdateBooking(current); err != nil {
			return err
		}
		bk = current
		return u.Emit(bookingDomain.NewBookingEvent(bookingDomain.EventBookingRefunded, current, actorID, map[string]any{
			"amount_cents": current.TotalPriceCents(),
		}))
	})
	if err != nil {
		return nil, err
	}

	result := toBookingDTO(bk)
	return &result, nil
}

// ApplyPaymentAuthorized records an authorization reported asynchronously by
// the payment service. Bookings that are no longer live are left untouched.
func (s *BookingService) ApplyPaymentAuthorized(ctx context.Context, bookingID uuid.UUID, reference string) error {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return err
	}
	return s.inRide(ctx, bk.RideID(), func(u bookingDomain.RideUnit) error {
		current, err := u.Booking(bookingID)
		if err != nil {
			return err
		}
		if !current.IsLive() || !current.PaymentStatus().CanTransitionTo(bookingDomain.PaymentAuthorized) {
			return nil
		}
		if err := current.RecordAuthorization(reference); err != nil {
			return err
		}
		current.IncrementVersion()
		return u.UpdateBooking(current)
	})
}

// ApplyPaymentFailed records a failure reported asynchronously by the payment
// service. Only a pending booking's payment can still fail this way.
func (s *BookingService) ApplyPaymentFailed(ctx context.Context, bookingID uuid.UUID, reason string) error {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return err
	}
	return s.inRide(ctx, bk.RideID(), func(u bookingDomain.RideUnit) error {
		current, err := u.Booking(bookingID)
		if err != nil {
			return err
		}
		if current.Status() != bookingDomain.StatusPending || !current.PaymentStatus().CanTransitionTo(bookingDomain.PaymentFailed) {
			return nil
		}
		if err := current.RecordPaymentFailure(reason); err != nil {
			return err
		}
		current.IncrementVersion()
		return u.UpdateBooking(current)
	})
}

// GetBooking retrieves a booking visible to the viewer: its passenger, the
// ride's driver, or an admin.
func (s *BookingService) GetBooking(ctx context.Context, bookingID, viewerID uuid.UUID, isAdmin bool) (*BookingDTO, error) {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && bk.PassengerID() != viewerID {
		r, err := s.rides.FindByID(ctx, bk.RideID())
		if err != nil {
			return nil, err
		}
		if !r.IsOwnedBy(viewerID) {
			return nil, domain.NewUnauthorizedError("booking is not visible to this user")
		}
	}
	result := toBookingDTO(bk)
	return &result, nil
}

// GetPassengerBookings retrieves paginated bookings for a specific passenger.
func (s *BookingService) GetPassengerBookings(ctx context.Context, passengerID uuid.UUID, page, limit int) (*domain.PaginatedResult[BookingDTO], error) {
	bookings, total, err := s.repo.FindByPassengerID(ctx, passengerID, page, limit)
	if err != nil {
		return nil, err
	}

	result := domain.NewPaginatedResult(toBookingDTOs(bookings), total, page, limit)
	return &result, nil
}

// GetRideBookings lists every booking of a ride for its driver.
func (s *BookingService) GetRideBookings(ctx context.Context, rideID, driverID uuid.UUID, isAdmin bool) ([]BookingDTO, error) {
	r, err := s.rides.FindByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !r.IsOwnedBy(driverID) {
		return nil, domain.NewUnauthorizedError("ride does not belong to this driver")
	}
	bookings, err := s.repo.FindByRideID(ctx, rideID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ride bookings: %w", err)
	}
	return toBookingDTOs(bookings), nil
}

// --- Admin methods ---

// BookingStatsDTO holds booking statistics for the admin dashboard.
type BookingStatsDTO struct {
	TotalBookings int64            `json:"total_bookings"`
	ByStatus      map[string]int64 `json:"by_status"`
}

// ListAllBookings returns a paginated list of all bookings (admin).
func (s *BookingService) ListAllBookings(ctx context.Context, page, limit int) ([]BookingDTO, int64, error) {
	bookings, total, err := s.repo.ListAll(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}
	return toBookingDTOs(bookings), total, nil
}

// GetBookingStats returns aggregate booking statistics (admin).
func (s *BookingService) GetBookingStats(ctx context.Context) (*BookingStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking stats: %w", err)
	}

	var total int64
	for _, c := range counts {
		total += c
	}

	return &BookingStatsDTO{
		TotalBookings: total,
		ByStatus:      counts,
	}, nil
}

// --- Payment coordination ---

// holdFunds authorizes the booking's price exactly once. A gate failure or
// timeout leaves the booking pending and is reported as PaymentNotAuthorized.
func (s *BookingService) holdFunds(ctx context.Context, bk *bookingDomain.Booking) (*bookingDomain.Booking, error) {
	gctx, cancel := s.gateContext(ctx)
	auth, gateErr := s.gate.Authorize(gctx, payment.Charge{
		BookingID:   bk.ID(),
		PassengerID: bk.PassengerID(),
		AmountCents: bk.TotalPriceCents(),
		Currency:    bk.Currency(),
	})
	cancel()

	if gateErr != nil {
		s.logger.Warn("payment authorization failed",
			zap.String("booking_id", bk.ID().String()),
			zap.Error(gateErr),
		)
		err := s.inRide(ctx, bk.RideID(), func(u bookingDomain.RideUnit) error {
			current, err := u.Booking(bk.ID())
			if err != nil {
				return err
			}
			if !current.PaymentStatus().CanTransitionTo(bookingDomain.PaymentFailed) {
				return nil
			}
			if err := current.RecordPaymentFailure(gateErr.Error()); err != nil {
				return err
			}
			current.IncrementVersion()
			return u.UpdateBooking(current)
		})
		if err != nil {
			s.logger.Error("failed to record payment failure", zap.String("booking_id", bk.ID().String()), zap.Error(err))
		}
		return nil, domain.NewPaymentNotAuthorizedError(gateErr)
	}

	var updated *bookingDomain.Booking
	err := s.inRide(ctx, bk.RideID(), func(u bookingDomain.RideUnit) error {
		current, err := u.Booking(bk.ID())
		if err != nil {
			return err
		}
		if !current.IsLive() {
			return domain.NewAlreadyProcessedError("booking "+current.ID().String(), current.Status().String())
		}
		if err := current.RecordAuthorization(auth.Reference); err != nil {
			return err
		}
		current.IncrementVersion()
		if err := u.UpdateBooking(current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		// The hold is orphaned; hand it back.
		s.releaseHold(ctx, bk.ID(), auth.Reference)
		return nil, err
	}
	return updated, nil
}

// settleAccepted captures the funds of a freshly accepted booking. On capture
// failure it compensates: the booking moves to accept_failed, its seats are
// released and the hold is returned. The caller's cancellation does not stop
// settlement once seats are committed. A capture the gate reports as already
// done counts as success, so settling the same booking twice is harmless.
func (s *BookingService) settleAccepted(ctx context.Context, bk *bookingDomain.Booking, actorID uuid.UUID) (*bookingDomain.Booking, error) {
	ctx = context.WithoutCancel(ctx)

	gctx, cancel := s.gateContext(ctx)
	captureErr := s.gate.Capture(gctx, bk.PaymentReference(), bk.TotalPriceCents())
	cancel()

	if errors.Is(captureErr, payment.ErrAlreadyCaptured) {
		s.logger.Info("authorization already captured",
			zap.String("booking_id", bk.ID().String()),
			zap.String("reference", bk.PaymentReference()),
		)
		captureErr = nil
	}

	if captureErr != nil {
		s.logger.Warn("payment capture failed, rolling back reservation",
			zap.String("booking_id", bk.ID().String()),
			zap.Error(captureErr),
		)
		current, rolledBack := s.compensate(ctx, bk, actorID, captureErr)
		if !rolledBack && current != nil && current.PaymentStatus() == bookingDomain.PaymentCaptured {
			// Another settlement won; the booking stands.
			return current, nil
		}
		return nil, domain.NewPaymentCaptureFailedError(captureErr)
	}

	var (
		settled     *bookingDomain.Booking
		needsRefund bool
	)
	err := s.inRide(ctx, bk.RideID(), func(u bookingDomain.RideUnit) error {
		current, err := u.Booking(bk.ID())
		if err != nil {
			return err
		}
		settled = current
		needsRefund = false
		switch {
		case current.PaymentStatus() == bookingDomain.PaymentCaptured && current.PaymentReference() == bk.PaymentReference():
			// Recorded by an earlier settlement.
			return nil
		case current.Status() != bookingDomain.StatusAccepted || current.PaymentStatus() != bookingDomain.PaymentAuthorized:
			// Cancelled while the capture was in flight.
			needsRefund = current.PaymentReference() == bk.PaymentReference()
			return nil
		}
		if err := current.RecordCapture(); err != nil {
			return err
		}
		current.IncrementVersion()
		if err := u.UpdateBooking(current); err != nil {
			return err
		}
		return u.Emit(bookingDomain.NewBookingEvent(bookingDomain.EventBookingAccepted, current, actorID, nil))
	})
	if err != nil {
		// Funds are captured but not recorded. The reconciler settles the
		// booking again and the gate answers ErrAlreadyCaptured.
		s.logger.Error("failed to record capture",
			zap.String("booking_id", bk.ID().String()),
			zap.Error(err),
		)
		return nil, err
	}

	if needsRefund {
		gctx, cancel := s.gateContext(ctx)
		if err := s.gate.Refund(gctx, bk.PaymentReference(), bk.TotalPriceCents()); err != nil {
			s.logger.Error("failed to refund capture of cancelled booking",
				zap.String("booking_id", bk.ID().String()),
				zap.Error(err),
			)
		}
		cancel()
	}
	return settled, nil
}

// compensate undoes a reservation whose capture failed. It acts only while the
// booking is accepted and still holds the same uncaptured authorization, and
// returns the booking as last seen under the lock.
func (s *BookingService) compensate(ctx context.Context, bk *bookingDomain.Booking, actorID uuid.UUID, cause error) (*bookingDomain.Booking, bool) {
	var (
		seen     *bookingDomain.Booking
		released bool
	)
	err := s.inRide(ctx, bk.RideID(), func(u bookingDomain.RideUnit) error {
		current, err := u.Booking(bk.ID())
		if err != nil {
			return err
		}
		seen = current
		released = false
		if current.Status() != bookingDomain.StatusAccepted ||
			current.PaymentStatus() != bookingDomain.PaymentAuthorized ||
			current.PaymentReference() != bk.PaymentReference() {
			return nil
		}
		if err := current.FailAccept(cause.Error()); err != nil {
			return err
		}
		current.IncrementVersion()
		if err := u.UpdateBooking(current); err != nil {
			return err
		}
		released = true
		return u.Emit(bookingDomain.NewBookingEvent(bookingDomain.EventBookingAcceptFailed, current, actorID, map[string]any{
			"seats_released": current.SeatsRequested(),
			"reason":         cause.Error(),
		}))
	})
	if err != nil {
		s.logger.Error("compensation failed, booking left for reconciliation",
			zap.String("booking_id", bk.ID().String()),
			zap.Error(err),
		)
		return nil, false
	}
	if released {
		s.releaseHold(ctx, bk.ID(), bk.PaymentReference())
	}
	return seen, released
}

// claimStale re-checks a stale accept under the ride lock and bumps its
// version. Only the caller whose snapshot still matches gets the booking back;
// concurrent reconcilers see the new version and skip it.
func (s *BookingService) claimStale(ctx context.Context, bk *bookingDomain.Booking) (*bookingDomain.Booking, error) {
	var claimed *bookingDomain.Booking
	err := s.inRide(ctx, bk.RideID(), func(u bookingDomain.RideUnit) error {
		claimed = nil
		current, err := u.Booking(bk.ID())
		if err != nil {
			return err
		}
		if current.Version() != bk.Version() ||
			current.Status() != bookingDomain.StatusAccepted ||
			current.PaymentStatus() != bookingDomain.PaymentAuthorized {
			return nil
		}
		current.IncrementVersion()
		if err := u.UpdateBooking(current); err != nil {
			return err
		}
		claimed = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// releaseHold returns an uncaptured authorization. Failures are logged; the
// payment service expires stale holds on its own.
func (s *BookingService) releaseHold(ctx context.Context, bookingID uuid.UUID, reference string) {
	if reference == "" {
		return
	}
	gctx, cancel := s.gateContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.gate.Release(gctx, reference); err != nil {
		s.logger.Warn("failed to release payment hold",
			zap.String("booking_id", bookingID.String()),
			zap.String("reference", reference),
			zap.Error(err),
		)
	}
}

// --- Helpers ---

func (s *BookingService) inRide(ctx context.Context, rideID uuid.UUID, fn func(bookingDomain.RideUnit) error) error {
	return withConflictRetry(ctx, s.cfg.ConflictAttempts, func() error {
		return s.uow.WithinRide(ctx, rideID, fn)
	})
}

func (s *BookingService) gateContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.PaymentTimeout)
}

// loadForDriver loads a booking and checks that driverID owns its ride.
func (s *BookingService) loadForDriver(ctx context.Context, bookingID, driverID uuid.UUID) (*bookingDomain.Booking, error) {
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	r, err := s.rides.FindByID(ctx, bk.RideID())
	if err != nil {
		return nil, err
	}
	if !r.IsOwnedBy(driverID) {
		return nil, domain.NewUnauthorizedError("ride does not belong to this driver")
	}
	return bk, nil
}

func checkRefundable(bk *bookingDomain.Booking) error {
	if bk.PaymentStatus() == bookingDomain.PaymentRefunded {
		return domain.NewAlreadyProcessedError("payment of booking "+bk.ID().String(), bk.PaymentStatus().String())
	}
	if bk.Status() != bookingDomain.StatusCompleted && bk.Status() != bookingDomain.StatusCancelled {
		return domain.NewInvalidStateError(bk.Status().String(), "refunded")
	}
	if bk.PaymentStatus() != bookingDomain.PaymentCaptured {
		return domain.NewInvalidStateError("payment "+bk.PaymentStatus().String(), "payment refunded")
	}
	return nil
}

func toBookingDTOs(bookings []*bookingDomain.Booking) []BookingDTO {
	dtos := make([]BookingDTO, len(bookings))
	for i, bk := range bookings {
		dtos[i] = toBookingDTO(bk)
	}
	return dtos
}

func toBookingDTO(bk *bookingDomain.Booking) BookingDTO {
	return BookingDTO{
		ID:               bk.ID(),
		BookingNumber:    bk.BookingNumber(),
		RideID:           bk.RideID(),
		PassengerID:      bk.PassengerID(),
		SeatsRequested:   bk.SeatsRequested(),
		TotalPriceCents:  bk.TotalPriceCents(),
		Currency:         bk.Currency(),
		Status:           bk.Status().String(),
		PaymentStatus:    bk.PaymentStatus().String(),
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
