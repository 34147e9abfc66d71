package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	bookingDomain "github.com/Laju-Ride/service-booking/internal/domain/booking"
)

// OutboxRelay moves committed events from the outbox to a Dispatcher.
type OutboxRelay struct {
	outbox     bookingDomain.OutboxRepository
	dispatcher Dispatcher
	interval   time.Duration
	batchSize  int
	timeout    time.Duration
	logger     *zap.Logger
}

// NewOutboxRelay creates a new OutboxRelay.
func NewOutboxRelay(
	outbox bookingDomain.OutboxRepository,
	dispatcher Dispatcher,
	interval time.Duration,
	batchSize int,
	timeout time.Duration,
	logger *zap.Logger,
) *OutboxRelay {
	return &OutboxRelay{
		outbox:     outbox,
		dispatcher: dispatcher,
		interval:   interval,
		batchSize:  batchSize,
		timeout:    timeout,
		logger:     logger,
	}
}

// Run relays on every tick until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("outbox relay failed", zap.Error(err))
			}
		}
	}
}

// RelayOnce dispatches one batch and returns how many events were delivered.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	n, err := r.outbox.Relay(ctx, r.batchSize, r.dispatch)
	if n > 0 {
		r.logger.Debug("relayed outbox events", zap.Int("count", n))
	}
	return n, err
}

func (r *OutboxRelay) dispatch(ctx context.Context, ev bookingDomain.Event) error {
	dctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.dispatcher.Dispatch(dctx, ev); err != nil {
		r.logger.Warn("event dispatch failed, will retry",
			zap.String("type", string(ev.Type)),
			zap.String("event_id", ev.ID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}
