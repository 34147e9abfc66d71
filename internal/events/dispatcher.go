package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	bookingDomain "github.com/Laju-Ride/service-booking/internal/domain/booking"
)

// eventSource identifies this service in published envelopes.
const eventSource = "service-booking"

// Dispatcher delivers committed booking events to subscribers. Delivery is
// at-least-once; a returned error leaves the event in the outbox for retry.
type Dispatcher interface {
	Dispatch(ctx context.Context, event bookingDomain.Event) error
	Close() error
}

// EventData is the wire form of a booking event.
type EventData struct {
	EventID    uuid.UUID      `json:"event_id"`
	Type       string         `json:"type"`
	BookingID  *uuid.UUID     `json:"booking_id,omitempty"`
	RideID     uuid.UUID      `json:"ride_id"`
	ActorID    *uuid.UUID     `json:"actor_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

func toEventData(ev bookingDomain.Event) EventData {
	data := EventData{
		EventID:    ev.ID,
		Type:       string(ev.Type),
		RideID:     ev.RideID,
		OccurredAt: ev.OccurredAt,
		Payload:    ev.Payload,
	}
	if ev.BookingID != uuid.Nil {
		id := ev.BookingID
		data.BookingID = &id
	}
	if ev.ActorID != uuid.Nil {
		id := ev.ActorID
		data.ActorID = &id
	}
	return data
}

// partitionKey keeps all events of one booking, or of one ride for ride-level
// events, in order on the same partition.
func partitionKey(ev bookingDomain.Event) string {
	if ev.BookingID != uuid.Nil {
		return ev.BookingID.String()
	}
	return ev.RideID.String()
}

// LogDispatcher writes events to the log. Used in development.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a new LogDispatcher.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, ev bookingDomain.Event) error {
	d.logger.Info("booking event",
		zap.String("type", string(ev.Type)),
		zap.String("event_id", ev.ID.String()),
		zap.String("booking_id", ev.BookingID.String()),
		zap.String("ride_id", ev.RideID.String()),
		zap.Any("payload", ev.Payload),
	)
	return nil
}

func (d *LogDispatcher) Close() error { return nil }
