package booking

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event emitted after a committed transition.
type EventType string

const (
	EventBookingRequested    EventType = "booking.requested"
	EventBookingAccepted     EventType = "booking.accepted"
	EventBookingRejected     EventType = "booking.rejected"
	EventBookingCancelled    EventType = "booking.cancelled"
	EventBookingCompleted    EventType = "booking.completed"
	EventBookingAcceptFailed EventType = "booking.accept_failed"
	EventBookingRefunded     EventType = "booking.refunded"
	EventRideCancelled       EventType = "ride.cancelled"
	EventRideCompleted       EventType = "ride.completed"
)

// Event is an immutable record of a committed transition. BookingID is
// uuid.Nil for ride-level events.
type Event struct {
	ID         uuid.UUID
	Type       EventType
	BookingID  uuid.UUID
	RideID     uuid.UUID
	ActorID    uuid.UUID
	OccurredAt time.Time
	Payload    map[string]any
}

// NewBookingEvent snapshots b into an event of type t. extra is merged over
// the base payload.
func NewBookingEvent(t EventType, b *Booking, actorID uuid.UUID, extra map[string]any) Event {
	payload := map[string]any{
		"booking_number": b.BookingNumber(),
		"passenger_id":   b.PassengerID().String(),
		"seats":          b.SeatsRequested(),
		"status":         b.Status().String(),
		"payment_status": b.PaymentStatus().String(),
		"total_price":    b.TotalPriceCents(),
		"currency":       b.Currency(),
	}
	for k, v := range extra {
		payload[k] = v
	}
	return Event{
		ID:         uuid.New(),
		Type:       t,
		BookingID:  b.ID(),
		RideID:     b.RideID(),
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// NewRideEvent builds a ride-level event.
func NewRideEvent(t EventType, rideID, actorID uuid.UUID, payload map[string]any) Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return Event{
		ID:         uuid.New(),
		Type:       t,
		RideID:     rideID,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}
