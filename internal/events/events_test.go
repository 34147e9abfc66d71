package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
	"github.com/Laju-Ride/service-booking/internal/common/kafka"
	bookingDomain "github.com/Laju-Ride/service-booking/internal/domain/booking"
	rideDomain "github.com/Laju-Ride/service-booking/internal/domain/ride"
	"github.com/Laju-Ride/service-booking/internal/repository/memstore"
)

type fakePublisher struct {
	topic  string
	events []kafka.CloudEvent
	err    error
}

func (p *fakePublisher) PublishEvent(_ context.Context, topic string, event kafka.CloudEvent) error {
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return nil
}

func (c *fakeChannel) Close() error { return nil }

// fakeDispatcher fails the first failures calls, then records events.
type fakeDispatcher struct {
	mu        sync.Mutex
	failures  int
	delivered []bookingDomain.Event
}

func (d *fakeDispatcher) Dispatch(_ context.Context, ev bookingDomain.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		return errors.New("broker unavailable")
	}
	d.delivered = append(d.delivered, ev)
	return nil
}

func (d *fakeDispatcher) Close() error { return nil }

func newAcceptedEvent(t *testing.T) bookingDomain.Event {
	t.Helper()
	bk, err := bookingDomain.NewBooking(uuid.New(), uuid.New(), 2, 3000, "MYR")
	require.NoError(t, err)
	return bookingDomain.NewBookingEvent(bookingDomain.EventBookingAccepted, bk, uuid.New(), nil)
}

func TestKafkaDispatcher_PublishesCloudEvent(t *testing.T) {
	pub := &fakePublisher{}
	d := NewKafkaDispatcher(pub, "booking.events")
	ev := newAcceptedEvent(t)

	require.NoError(t, d.Dispatch(context.Background(), ev))

	require.Len(t, pub.events, 1)
	ce := pub.events[0]
	assert.Equal(t, "booking.events", pub.topic)
	assert.Equal(t, "booking.accepted", ce.Type)
	assert.Equal(t, ev.ID.String(), ce.ID)
	assert.Equal(t, ev.BookingID.String(), ce.Subject)
	assert.Equal(t, eventSource, ce.Source)

	var data EventData
	require.NoError(t, ce.ParseData(&data))
	require.NotNil(t, data.BookingID)
	assert.Equal(t, ev.BookingID, *data.BookingID)
	assert.Equal(t, ev.RideID, data.RideID)
	assert.EqualValues(t, 2, data.Payload["seats"])
}

func TestKafkaDispatcher_RideEventKeyedByRide(t *testing.T) {
	pub := &fakePublisher{}
	d := NewKafkaDispatcher(pub, "booking.events")
	ev := bookingDomain.NewRideEvent(bookingDomain.EventRideCancelled, uuid.New(), uuid.New(), nil)

	require.NoError(t, d.Dispatch(context.Background(), ev))
	require.Len(t, pub.events, 1)
	assert.Equal(t, ev.RideID.String(), pub.events[0].Subject)
}

func TestKafkaDispatcher_PropagatesError(t *testing.T) {
	d := NewKafkaDispatcher(&fakePublisher{err: errors.New("no leader")}, "booking.events")
	err := d.Dispatch(context.Background(), newAcceptedEvent(t))
	assert.ErrorContains(t, err, "no leader")
}

func TestRabbitMQDispatcher_RoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	d := &RabbitMQDispatcher{channel: ch, exchange: "booking.events", logger: zap.NewNop()}
	ev := newAcceptedEvent(t)

	require.NoError(t, d.Dispatch(context.Background(), ev))

	assert.Equal(t, "booking.events", ch.exchange)
	assert.Equal(t, "booking.accepted", ch.key)
	assert.Equal(t, ev.ID.String(), ch.msg.MessageId)
	assert.Equal(t, uint8(amqp.Persistent), ch.msg.DeliveryMode)

	var data EventData
	require.NoError(t, json.Unmarshal(ch.msg.Body, &data))
	assert.Equal(t, "booking.accepted", data.Type)
}

func TestOutboxRelay_RetriesFailedDispatch(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	rd, err := rideDomain.NewRide(uuid.New(), "KL Sentral", "Ipoh", time.Now().Add(time.Hour), 3, 1500, "MYR", "")
	require.NoError(t, err)
	require.NoError(t, store.Rides().Save(ctx, rd))

	first := bookingDomain.NewRideEvent(bookingDomain.EventRideCompleted, rd.ID(), rd.DriverID(), nil)
	second := bookingDomain.NewRideEvent(bookingDomain.EventRideCancelled, rd.ID(), rd.DriverID(), nil)
	require.NoError(t, store.UnitOfWork().WithinRide(ctx, rd.ID(), func(u bookingDomain.RideUnit) error {
		return u.Emit(first, second)
	}))

	dispatcher := &fakeDispatcher{failures: 1}
	relay := NewOutboxRelay(store.Outbox(), dispatcher, time.Hour, 10, time.Second, zap.NewNop())

	n, err := relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = relay.RelayOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := store.Outbox().CountPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
	require.Len(t, dispatcher.delivered, 2)
	assert.ElementsMatch(t, []uuid.UUID{first.ID, second.ID},
		[]uuid.UUID{dispatcher.delivered[0].ID, dispatcher.delivered[1].ID})
}

func TestOutboxRelay_RunStopsOnCancel(t *testing.T) {
	store := memstore.New()
	relay := NewOutboxRelay(store.Outbox(), &fakeDispatcher{}, 5*time.Millisecond, 10, time.Second, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

type fakePaymentHandler struct {
	authorized map[uuid.UUID]string
	failed     map[uuid.UUID]string
	err        error
}

func newFakePaymentHandler() *fakePaymentHandler {
	return &fakePaymentHandler{authorized: map[uuid.UUID]string{}, failed: map[uuid.UUID]string{}}
}

func (h *fakePaymentHandler) ApplyPaymentAuthorized(_ context.Context, id uuid.UUID, ref string) error {
	if h.err != nil {
		return h.err
	}
	h.authorized[id] = ref
	return nil
}

func (h *fakePaymentHandler) ApplyPaymentFailed(_ context.Context, id uuid.UUID, reason string) error {
	if h.err != nil {
		return h.err
	}
	h.failed[id] = reason
	return nil
}

type memDedup struct {
	seen map[string]bool
}

func (d *memDedup) FirstSeen(_ context.Context, id string) (bool, error) {
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDedup) Forget(_ context.Context, id string) error {
	delete(d.seen, id)
	return nil
}

func newTestConsumer(h PaymentResultHandler, d Deduplicator) *PaymentEventConsumer {
	return &PaymentEventConsumer{handler: h, dedup: d, logger: zap.NewNop()}
}

func TestPaymentConsumer_AppliesResults(t *testing.T) {
	h := newFakePaymentHandler()
	c := newTestConsumer(h, nil)
	ctx := context.Background()

	authID, failID := uuid.New(), uuid.New()
	authEvt, err := kafka.NewCloudEvent("service-payment", PaymentAuthorized, PaymentAuthorizedEvent{BookingID: authID, Reference: "auth_9"})
	require.NoError(t, err)
	failEvt, err := kafka.NewCloudEvent("service-payment", PaymentFailed, PaymentFailedEvent{BookingID: failID, Reason: "card declined"})
	require.NoError(t, err)

	require.NoError(t, c.HandleEvent(ctx, authEvt))
	require.NoError(t, c.HandleEvent(ctx, failEvt))

	assert.Equal(t, "auth_9", h.authorized[authID])
	assert.Equal(t, "card declined", h.failed[failID])
}

func TestPaymentConsumer_SkipsDuplicates(t *testing.T) {
	h := newFakePaymentHandler()
	c := newTestConsumer(h, &memDedup{seen: map[string]bool{}})
	ctx := context.Background()

	id := uuid.New()
	evt, err := kafka.NewCloudEvent("service-payment", PaymentAuthorized, PaymentAuthorizedEvent{BookingID: id, Reference: "auth_1"})
	require.NoError(t, err)
	require.NoError(t, c.HandleEvent(ctx, evt))

	h.authorized[id] = "overwritten"
	require.NoError(t, c.HandleEvent(ctx, evt))
	assert.Equal(t, "overwritten", h.authorized[id])
}

func TestPaymentConsumer_ErrorHandling(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantRetry bool
	}{
		{"conflict is retried", domain.NewConflictError("busy"), true},
		{"infrastructure error is retried", errors.New("db down"), true},
		{"missing booking is dropped", domain.NewNotFoundError("Booking", "x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newFakePaymentHandler()
			h.err = tt.err
			dedup := &memDedup{seen: map[string]bool{}}
			c := newTestConsumer(h, dedup)

			evt, err := kafka.NewCloudEvent("service-payment", PaymentFailed, PaymentFailedEvent{BookingID: uuid.New()})
			require.NoError(t, err)

			err = c.HandleEvent(context.Background(), evt)
			if tt.wantRetry {
				assert.Error(t, err)
				assert.False(t, dedup.seen[evt.ID], "claim must be released for redelivery")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPaymentConsumer_IgnoresOtherTypes(t *testing.T) {
	h := newFakePaymentHandler()
	c := newTestConsumer(h, nil)
	evt, err := kafka.NewCloudEvent("service-payment", "payment.escrow_released", map[string]string{})
	require.NoError(t, err)

	require.NoError(t, c.HandleEvent(context.Background(), evt))
	assert.Empty(t, h.authorized)
	assert.Empty(t, h.failed)
}
