// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
	"time"
)

// EventType identifies different event types
type EventType string

const (
	// Acquisition events
	EventTypeAcquisitionStatus EventType = "eeg.status_changed"
	EventTypeSnapshot          EventType = "eeg.snapshot"

	// Trigger events
	EventTypeStateChanged EventType = "stress.state_changed"
	EventTypeRecovered    EventType = "stress.recovered"

	// Intervention events
	EventTypeInterventionStarted  EventType = "mentor.intervention_started"
	EventTypeInterventionText     EventType = "mentor.intervention_text"
	EventTypeInterventionDone     EventType = "mentor.intervention_done"
	EventTypeInterventionRejected EventType = "mentor.intervention_rejected"

	// Presentation events
	EventTypeAvatarState EventType = "avatar.state_changed"

	// Configuration events
	EventTypeConfigReloaded EventType = "config.reloaded"
)

// Event represents a bus event
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]any
}

// NewEvent stamps an event of the given type.
func NewEvent(eventType EventType, data map[string]any) Event {
	return Event{Type: eventType, Timestamp: time.Now(), Data: data}
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	any      []Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

// SubscribeAll adds a handler that receives every event.
func (b *EventBus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.any = append(b.any, handler)
}

func (b *EventBus) handlersFor(eventType EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := make([]Handler, 0, len(b.handlers[eventType])+len(b.any))
	handlers = append(handlers, b.handlers[eventType]...)
	handlers = append(handlers, b.any...)
	return handlers
}

// Publish sends an event to all subscribed handlers without blocking the caller.
func (b *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, handler := range b.handlersFor(event.Type) {
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	var wg sync.WaitGroup
	for _, handler := range b.handlersFor(event.Type) {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
	b.any = nil
}
