package events

import (
	"sync"
	"time"
)

// Handler receives events published to a Bus.
type Handler func(Event)

// Bus is a minimal in-process publish/subscribe hub. Manager is the only publisher;
// nothing in this module subscribes by default, so events are dropped unless a caller
// registers a handler with Subscribe or SubscribeAll.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers fn to run for every event of the given type.
func (b *Bus) Subscribe(eventType EventType, fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], fn)
}

// SubscribeAll registers fn to run for every event regardless of type.
func (b *Bus) SubscribeAll(fn Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, fn)
}

// Emit builds an Event and synchronously invokes every matching subscriber.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	handlers := append([]Handler{}, b.handlers[eventType]...)
	all := append([]Handler{}, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
	for _, h := range all {
		h(event)
	}
}
