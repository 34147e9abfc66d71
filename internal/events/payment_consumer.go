package events

import (
	"context"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Laju-Ride/service-booking/internal/common/domain"
	"github.com/Laju-Ride/service-booking/internal/common/kafka"
)

// Payment event types consumed from the payment topic.
const (
	PaymentAuthorized = "payment.authorized"
	PaymentFailed     = "payment.failed"
)

// PaymentAuthorizedEvent is the data of a payment.authorized CloudEvent.
type PaymentAuthorizedEvent struct {
	BookingID uuid.UUID `json:"booking_id"`
	Reference string    `json:"reference"`
}

// PaymentFailedEvent is the data of a payment.failed CloudEvent.
type PaymentFailedEvent struct {
	BookingID uuid.UUID `json:"booking_id"`
	Reason    string    `json:"reason"`
}

// PaymentResultHandler applies asynchronous payment results to bookings.
type PaymentResultHandler interface {
	ApplyPaymentAuthorized(ctx context.Context, bookingID uuid.UUID, reference string) error
	ApplyPaymentFailed(ctx context.Context, bookingID uuid.UUID, reason string) error
}

// PaymentEventConsumer listens to payment events and updates booking payment state.
type PaymentEventConsumer struct {
	consumer *kafka.Consumer
	handler  PaymentResultHandler
	dedup    Deduplicator
	logger   *zap.Logger
}

// NewPaymentEventConsumer creates a new PaymentEventConsumer. dedup may be nil.
func NewPaymentEventConsumer(
	brokers []string,
	groupID string,
	topic string,
	handler PaymentResultHandler,
	dedup Deduplicator,
	logger *zap.Logger,
) *PaymentEventConsumer {
	return &PaymentEventConsumer{
		consumer: kafka.NewConsumer(brokers, groupID, topic, logger),
		handler:  handler,
		dedup:    dedup,
		logger:   logger,
	}
}

// Start begins consuming payment events. This blocks until the context is cancelled.
func (c *PaymentEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *PaymentEventConsumer) Close() error {
	return c.consumer.Close()
}

func (c *PaymentEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	cloudEvent, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from payment topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}
	return c.HandleEvent(ctx, cloudEvent)
}

// HandleEvent applies one payment CloudEvent. Errors are returned only when a
// retry could succeed.
func (c *PaymentEventConsumer) HandleEvent(ctx context.Context, cloudEvent kafka.CloudEvent) error {
	if cloudEvent.Type != PaymentAuthorized && cloudEvent.Type != PaymentFailed {
		c.logger.Debug("ignoring unhandled payment event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}

	if c.dedup != nil {
		first, err := c.dedup.FirstSeen(ctx, cloudEvent.ID)
		if err != nil {
			// Handlers are idempotent, so carry on without dedup.
			c.logger.Warn("dedup check failed", zap.String("id", cloudEvent.ID), zap.Error(err))
		} else if !first {
			c.logger.Debug("skipping duplicate payment event", zap.String("id", cloudEvent.ID))
			return nil
		}
	}

	err := c.apply(ctx, cloudEvent)
	if err != nil && c.dedup != nil {
		if ferr := c.dedup.Forget(ctx, cloudEvent.ID); ferr != nil {
			c.logger.Warn("failed to release dedup claim", zap.String("id", cloudEvent.ID), zap.Error(ferr))
		}
	}
	return err
}

func (c *PaymentEventConsumer) apply(ctx context.Context, cloudEvent kafka.CloudEvent) error {
	switch cloudEvent.Type {
	case PaymentAuthorized:
		var evt PaymentAuthorizedEvent
		if err := cloudEvent.ParseData(&evt); err != nil {
			c.logger.Error("failed to parse PaymentAuthorizedEvent data", zap.Error(err))
			return nil // Don't retry malformed data
		}
		return c.result("authorized", evt.BookingID,
			c.handler.ApplyPaymentAuthorized(ctx, evt.BookingID, evt.Reference))

	default:
		var evt PaymentFailedEvent
		if err := cloudEvent.ParseData(&evt); err != nil {
			c.logger.Error("failed to parse PaymentFailedEvent data", zap.Error(err))
			return nil
		}
		return c.result("failed", evt.BookingID,
			c.handler.ApplyPaymentFailed(ctx, evt.BookingID, evt.Reason))
	}
}

// result logs the outcome and drops errors that a redelivery cannot fix.
func (c *PaymentEventConsumer) result(outcome string, bookingID uuid.UUID, err error) error {
	if err == nil {
		c.logger.Info("applied payment result",
			zap.String("outcome", outcome),
			zap.String("booking_id", bookingID.String()),
		)
		return nil
	}

	switch domain.KindOf(err) {
	case domain.KindConcurrencyConflict, "":
		c.logger.Error("failed to apply payment result",
			zap.String("outcome", outcome),
			zap.String("booking_id", bookingID.String()),
			zap.Error(err),
		)
		return err
	default:
		c.logger.Warn("dropping payment result",
			zap.String("outcome", outcome),
			zap.String("booking_id", bookingID.String()),
			zap.Error(err),
		)
		return nil
	}
}
