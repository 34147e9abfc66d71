package memstore

import (
	"context"
	"time"

	"github.com/Laju-Ride/service-booking/internal/domain/booking"
)

// OutboxRepository implements booking.OutboxRepository on a Store.
type OutboxRepository struct {
	s *Store
}

// Relay publishes pending events in emission order. The outbox lock is held
// for the whole batch, so concurrent relays never publish the same event twice.
func (o *OutboxRepository) Relay(ctx context.Context, limit int, publish func(context.Context, booking.Event) error) (int, error) {
	o.s.outboxMu.Lock()
	defer o.s.outboxMu.Unlock()

	published := 0
	claimed := 0
	for _, rec := range o.s.outbox {
		if claimed >= limit {
			break
		}
		if rec.publishedAt != nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return published, err
		}
		claimed++
		if err := publish(ctx, rec.event); err != nil {
			rec.attempts++
			rec.lastError = err.Error()
			continue
		}
		now := time.Now().UTC()
		rec.publishedAt = &now
		published++
	}
	return published, nil
}

func (o *OutboxRepository) CountPending(_ context.Context) (int64, error) {
	o.s.outboxMu.Lock()
	defer o.s.outboxMu.Unlock()
	var n int64
	for _, rec := range o.s.outbox {
		if rec.publishedAt == nil {
			n++
		}
	}
	return n, nil
}

// Events returns every event ever emitted, in emission order.
func (o *OutboxRepository) Events() []booking.Event {
	o.s.outboxMu.Lock()
	defer o.s.outboxMu.Unlock()
	out := make([]booking.Event, len(o.s.outbox))
	for i, rec := range o.s.outbox {
		out[i] = rec.event
	}
	return out
}
