package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const reconcileBatchSize = 50

// Reconciler settles bookings left accepted with funds only authorized, which
// happens when the process stops between reserving seats and capturing.
type Reconciler struct {
	bookings *BookingService
	interval time.Duration
	after    time.Duration
	logger   *zap.Logger
}

// NewReconciler creates a Reconciler that runs every interval and picks up
// bookings untouched for longer than after.
func NewReconciler(bookings *BookingService, interval, after time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{bookings: bookings, interval: interval, after: after, logger: logger}
}

// Run reconciles until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("reconciler started",
		zap.Duration("interval", r.interval),
		zap.Duration("after", r.after),
	)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return nil
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil {
				r.logger.Error("reconcile pass failed", zap.Error(err))
			}
		}
	}
}

// ReconcileOnce settles one batch and returns how many bookings it claimed.
// Bookings another reconciler or a late accept got to first are skipped.
func (r *Reconciler) ReconcileOnce(ctx context.Context) (int, error) {
	stale, err := r.bookings.repo.FindStaleAccepted(ctx, time.Now().UTC().Add(-r.after), reconcileBatchSize)
	if err != nil {
		return 0, err
	}

	claimed := 0
	for _, bk := range stale {
		if ctx.Err() != nil {
			return claimed, ctx.Err()
		}
		log := r.logger.With(
			zap.String("booking_id", bk.ID().String()),
			zap.String("ride_id", bk.RideID().String()),
		)
		current, err := r.bookings.claimStale(ctx, bk)
		if err != nil {
			log.Warn("failed to claim stale accept", zap.Error(err))
			continue
		}
		if current == nil {
			log.Debug("stale accept already handled")
			continue
		}
		claimed++
		if _, err := r.bookings.settleAccepted(ctx, current, uuid.Nil); err != nil {
			log.Warn("stale accept rolled back", zap.Error(err))
			continue
		}
		log.Info("stale accept captured")
	}
	return claimed, nil
}
