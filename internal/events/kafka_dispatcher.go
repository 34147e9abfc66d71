package events

import (
	"context"
	"fmt"

	"github.com/Laju-Ride/service-booking/internal/common/kafka"
	bookingDomain "github.com/Laju-Ride/service-booking/internal/domain/booking"
)

// EventPublisher is the part of kafka.Producer the dispatcher needs.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event kafka.CloudEvent) error
	Close() error
}

// KafkaDispatcher publishes booking events as CloudEvents, keyed by booking.
type KafkaDispatcher struct {
	producer EventPublisher
	topic    string
}

// NewKafkaDispatcher creates a new KafkaDispatcher writing to topic.
func NewKafkaDispatcher(producer EventPublisher, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{producer: producer, topic: topic}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, ev bookingDomain.Event) error {
	ce, err := kafka.NewCloudEvent(eventSource, string(ev.Type), toEventData(ev))
	if err != nil {
		return err
	}
	// Reuse the outbox id so consumers can de-duplicate redeliveries.
	ce.ID = ev.ID.String()
	ce.Time = ev.OccurredAt
	ce.Subject = partitionKey(ev)

	if err := d.producer.PublishEvent(ctx, d.topic, ce); err != nil {
		return fmt.Errorf("failed to dispatch %s: %w", ev.Type, err)
	}
	return nil
}

func (d *KafkaDispatcher) Close() error {
	return d.producer.Close()
}
