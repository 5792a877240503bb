package event

import (
	"context"
	"fmt"

	"github.com/coccinelle/backend/internal/domain/shared"
	"github.com/coccinelle/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Message is one encoded event ready for a broker
type Message struct {
	Key     string // aggregate id, keeps per-aggregate ordering on partitioned brokers
	Type    string
	Body    []byte
	Headers map[string]string
}

// Sink delivers messages to an external broker
type Sink interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Forwarder is a wildcard bus handler that copies every event to a Sink
type Forwarder struct {
	sink       Sink
	serializer *EventSerializer
	logger     *zap.Logger
}

// NewForwarder creates a forwarder over sink
func NewForwarder(sink Sink, serializer *EventSerializer, logger *zap.Logger) *Forwarder {
	return &Forwarder{sink: sink, serializer: serializer, logger: logger}
}

// Handle encodes and sends one event
func (f *Forwarder) Handle(ctx context.Context, event shared.DomainEvent) error {
	body, err := f.serializer.Encode(event)
	if err != nil {
		return err
	}
	msg := Message{
		Key:  event.AggregateID(),
		Type: event.EventType(),
		Body: body,
		Headers: map[string]string{
			"event_id":   event.EventID().String(),
			"event_type": event.EventType(),
			"tenant_id":  event.TenantID().String(),
		},
	}
	if err := f.sink.Send(ctx, msg); err != nil {
		return fmt.Errorf("forward %s: %w", event.EventType(), err)
	}
	f.logger.Debug("event forwarded",
		zap.String("event_type", event.EventType()),
		zap.String("event_id", event.EventID().String()),
	)
	return nil
}

// EventTypes returns nil so the forwarder receives every event
func (f *Forwarder) EventTypes() []string { return nil }

// Close closes the underlying sink
func (f *Forwarder) Close() error { return f.sink.Close() }

var _ shared.EventHandler = (*Forwarder)(nil)

// NewSink builds the broker sink selected by cfg.Transport.
// It returns nil for the "memory" transport.
func NewSink(cfg config.EventConfig) (Sink, error) {
	switch cfg.Transport {
	case "", "memory":
		return nil, nil
	case "amqp":
		return NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange)
	case "kafka":
		return NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	default:
		return nil, fmt.Errorf("unknown event transport %q", cfg.Transport)
	}
}

// Setup creates the bus and, when a broker transport is configured,
// subscribes a forwarder to it. The returned close func releases the broker.
func Setup(cfg config.EventConfig, logger *zap.Logger) (*InMemoryEventBus, func() error, error) {
	bus := NewInMemoryEventBus(logger)

	sink, err := NewSink(cfg)
	if err != nil {
		return nil, nil, err
	}
	if sink == nil {
		return bus, func() error { return nil }, nil
	}

	serializer := NewEventSerializer()
	RegisterAllEvents(serializer)
	forwarder := NewForwarder(sink, serializer, logger)
	bus.Subscribe(forwarder)

	logger.Info("event forwarding enabled", zap.String("transport", cfg.Transport))
	return bus, forwarder.Close, nil
}
