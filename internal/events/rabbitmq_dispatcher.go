package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	bookingDomain "github.com/Laju-Ride/service-booking/internal/domain/booking"
)

const exchangeKind = "topic"

// amqpChannel is the subset of *amqp.Channel the dispatcher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQDispatcher publishes booking events to a topic exchange with the
// event type as routing key.
type RabbitMQDispatcher struct {
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
	logger   *zap.Logger

	// amqp channels are not safe for concurrent publishing.
	mu sync.Mutex
}

// NewRabbitMQDispatcher dials url and declares a durable topic exchange.
func NewRabbitMQDispatcher(url, exchange string, logger *zap.Logger) (*RabbitMQDispatcher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}

	return &RabbitMQDispatcher{conn: conn, channel: ch, exchange: exchange, logger: logger}, nil
}

func (d *RabbitMQDispatcher) Dispatch(ctx context.Context, ev bookingDomain.Event) error {
	body, err := json.Marshal(toEventData(ev))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.channel.PublishWithContext(ctx, d.exchange, string(ev.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID.String(),
		Timestamp:    ev.OccurredAt,
		Type:         string(ev.Type),
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}

	d.logger.Debug("published event",
		zap.String("exchange", d.exchange),
		zap.String("routing_key", string(ev.Type)),
		zap.String("id", ev.ID.String()),
	)
	return nil
}

func (d *RabbitMQDispatcher) Close() error {
	if d.channel != nil {
		_ = d.channel.Close()
	}
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}
