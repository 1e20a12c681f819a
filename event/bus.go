package event

import (
	"context"
	"log"
	"sync"
)

// EventHandler handles a published event
type EventHandler func(ctx context.Context, event Event) error

// EventBus is the interface for publishing and subscribing to refresh events
type EventBus interface {
	// Publish publishes an event
	Publish(ctx context.Context, event Event) error
	// Subscribe subscribes a handler to one event type
	Subscribe(eventType EventType, handler EventHandler) error
	// SubscribeAll subscribes a handler to all events
	SubscribeAll(handler EventHandler) error
}

// MemoryEventBus is the in-memory event bus implementation
type MemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	allHandlers []EventHandler
	logger      Logger
}

// Logger is the logging interface used by the bus
type Logger interface {
	Printf(format string, v ...any)
}

// defaultLogger logs through the standard library
type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// MemoryEventBusOption configures a MemoryEventBus
type MemoryEventBusOption func(*MemoryEventBus)

// WithLogger sets a custom logger for the event bus.
func WithLogger(logger Logger) MemoryEventBusOption {
	return func(b *MemoryEventBus) {
		b.logger = logger
	}
}

// NewMemoryEventBus creates a new in-memory event bus.
func NewMemoryEventBus(opts ...MemoryEventBusOption) *MemoryEventBus {
	bus := &MemoryEventBus{
		handlers:    make(map[EventType][]EventHandler),
		allHandlers: make([]EventHandler, 0),
		logger:      &defaultLogger{},
	}

	for _, opt := range opts {
		opt(bus)
	}

	return bus
}

// Publish publishes an event to all subscribed handlers.
// Handler errors are logged but do not block refresh execution.
func (b *MemoryEventBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	// Copy handlers to avoid holding lock during execution
	typeHandlers := make([]EventHandler, len(b.handlers[event.Type]))
	copy(typeHandlers, b.handlers[event.Type])
	allHandlers := make([]EventHandler, len(b.allHandlers))
	copy(allHandlers, b.allHandlers)
	b.mu.RUnlock()

	// Execute type-specific handlers
	for _, handler := range typeHandlers {
		b.executeHandler(ctx, handler, event)
	}

	// Execute all-event handlers
	for _, handler := range allHandlers {
		b.executeHandler(ctx, handler, event)
	}

	return nil
}

// executeHandler executes a single handler and logs any errors.
// Errors do not propagate to prevent blocking refresh execution.
func (b *MemoryEventBus) executeHandler(ctx context.Context, handler EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("[EventBus] handler panic for event %s: %v", event.Type, r)
		}
	}()

	if err := handler(ctx, event); err != nil {
		b.logger.Printf("[EventBus] handler error for event %s (task=%s): %v", event.Type, event.TaskID, err)
	}
}

// Subscribe subscribes a handler to a specific event type.
// Multiple handlers can be registered for the same event type.
func (b *MemoryEventBus) Subscribe(eventType EventType, handler EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll subscribes a handler to all events.
func (b *MemoryEventBus) SubscribeAll(handler EventHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Unsubscribe removes all handlers for a specific event type.
// This is useful for testing and cleanup.
func (b *MemoryEventBus) Unsubscribe(eventType EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.handlers, eventType)
}

// UnsubscribeAll removes all handlers (both type-specific and all-event handlers).
func (b *MemoryEventBus) UnsubscribeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = make(map[EventType][]EventHandler)
	b.allHandlers = make([]EventHandler, 0)
}

// HandlerCount returns the number of handlers for a specific event type.
func (b *MemoryEventBus) HandlerCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.handlers[eventType])
}

// AllHandlerCount returns the number of all-event handlers.
func (b *MemoryEventBus) AllHandlerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.allHandlers)
}

// AttachLogging subscribes handlers that log unit failures and batch
// completions on the given bus. A nil logger falls back to the standard
// library logger.
func AttachLogging(bus EventBus, logger Logger) error {
	if logger == nil {
		logger = &defaultLogger{}
	}

	if err := bus.Subscribe(EventUnitFailed, func(ctx context.Context, e Event) error {
		logger.Printf("[EventBus] unit failed: task=%s type=%s err=%v", e.TaskID, e.TaskType, e.Error)
		return nil
	}); err != nil {
		return err
	}

	return bus.Subscribe(EventBatchCompleted, func(ctx context.Context, e Event) error {
		logger.Printf("[EventBus] batch %v completed: succeeded=%v skipped=%v failed=%v",
			e.Data["batch_id"], e.Data["succeeded"], e.Data["skipped"], e.Data["failed"])
		return nil
	})
}

// NoOpEventBus is a no-op bus for tests or when events are disabled
type NoOpEventBus struct{}

var _ EventBus = (*NoOpEventBus)(nil)

func (n *NoOpEventBus) Publish(ctx context.Context, event Event) error { return nil }

func (n *NoOpEventBus) Subscribe(eventType EventType, handler EventHandler) error { return nil }

func (n *NoOpEventBus) SubscribeAll(handler EventHandler) error { return nil }
