package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange lead events go to.
const DefaultExchange = "leasebot.events"

// Publisher sends typed events. The event type doubles as the routing key.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
	Close() error
}

// Correlator is implemented by payloads that know their correlation key.
type Correlator interface {
	CorrelationKey() string
}

// AMQPPublisher publishes JSON envelopes to a topic exchange.
type AMQPPublisher struct {
	conn     *amqp091.Connection
	exchange string
	producer string
	log      *slog.Logger
}

// Dial connects to url and declares exchange as a durable topic exchange.
func Dial(url, exchange, producer string, logger *slog.Logger) (*AMQPPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{
		conn:     conn,
		exchange: exchange,
		producer: producer,
		log:      logger,
	}, nil
}

// Publish wraps data in an Envelope and sends it with routing key eventType.
func (p *AMQPPublisher) Publish(ctx context.Context, eventType string, data any) error {
	msg, err := p.encode(eventType, data)
	if err != nil {
		return err
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.PublishWithContext(ctx, p.exchange, eventType, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	p.log.Debug("published", slog.String("key", eventType), slog.String("exchange", p.exchange))
	return nil
}

func (p *AMQPPublisher) encode(eventType string, data any) (amqp091.Publishing, error) {
	env := NewEnvelope(eventType, p.producer, data)
	cid := ""
	if c, ok := data.(Correlator); ok {
		cid = c.CorrelationKey()
	}
	if cid == "" {
		cid = uuid.NewString()
	}
	env = env.WithCorrelation(cid)

	body, err := json.Marshal(env)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: cid,
		Type:          eventType,
		Timestamp:     time.Now(),
		Body:          body,
	}, nil
}

// Close closes the broker connection.
func (p *AMQPPublisher) Close() error {
	return p.conn.Close()
}

// FallbackPublisher logs and drops every event. Used when no broker is
// configured or the broker is unreachable at startup.
type FallbackPublisher struct {
	log *slog.Logger
}

// NewFallback returns a publisher that never fails.
func NewFallback(logger *slog.Logger) *FallbackPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackPublisher{log: logger}
}

func (p *FallbackPublisher) Publish(_ context.Context, eventType string, _ any) error {
	p.log.Debug("no broker, skipped publish", slog.String("key", eventType))
	return nil
}

func (p *FallbackPublisher) Close() error {
	return nil
}

// Connect dials url, or returns a FallbackPublisher when url is empty or the
// broker cannot be reached.
func Connect(url, exchange, producer string, logger *slog.Logger) Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		return NewFallback(logger)
	}
	p, err := Dial(url, exchange, producer, logger)
	if err != nil {
		logger.Warn("amqp unavailable, events disabled", slog.Any("error", err))
		return NewFallback(logger)
	}
	return p
}
