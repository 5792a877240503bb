package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/coccinelle/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrBusStopped is returned by Publish once Stop has been called
var ErrBusStopped = errors.New("event: bus stopped")

// InMemoryEventBus delivers events synchronously to in-process handlers.
// The RabbitMQ and Kafka forwarders are wildcard handlers on it.
type InMemoryEventBus struct {
	registry  *HandlerRegistry
	logger    *zap.Logger
	stopped   atomic.Bool
	inflight  sync.WaitGroup
	published atomic.Int64
}

func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger.Named("event_bus"),
	}
}

// Publish hands each event to its handlers in subscription order. Handler
// failures, panics included, are logged and never reach the publisher.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if b.stopped.Load() {
		return ErrBusStopped
	}
	b.inflight.Add(1)
	defer b.inflight.Done()

	for _, ev := range events {
		if ev == nil {
			continue
		}
		b.published.Add(1)
		for _, h := range b.registry.Handlers(ev.EventType()) {
			if err := b.deliver(ctx, h, ev); err != nil {
				b.logger.Error("Event handler failed",
					zap.String("event_type", ev.EventType()),
					zap.Stringer("event_id", ev.EventID()),
					zap.String("aggregate_id", ev.AggregateID()),
					zap.Stringer("tenant_id", ev.TenantID()),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

// Published counts events accepted since the bus was created
func (b *InMemoryEventBus) Published() int64 {
	return b.published.Load()
}

// Subscribe routes eventTypes to handler. With no types given the handler's
// own EventTypes apply, and an empty list there subscribes to everything.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("Handler subscribed", zap.Strings("event_types", eventTypes))
}

func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

// Start reopens a stopped bus
func (b *InMemoryEventBus) Start(context.Context) error {
	b.stopped.Store(false)
	b.logger.Info("Event bus started", zap.Int("handlers", b.registry.Count()))
	return nil
}

// Stop rejects new publishes and waits for the ones in flight, or for ctx
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.stopped.Store(true)

	drained := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		b.logger.Info("Event bus stopped", zap.Int64("published", b.published.Load()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *InMemoryEventBus) deliver(ctx context.Context, h shared.EventHandler, ev shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event handler panicked",
				zap.String("event_type", ev.EventType()),
				zap.Any("panic", r),
			)
			err = errHandlerPanicked
		}
	}()
	return h.Handle(ctx, ev)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
