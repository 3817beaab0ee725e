// Package bus carries engine lifecycle events to listeners outside the run loop.
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

const (
	// Engine events
	EventEngineStateChanged       EventType = "engine.state_changed"
	EventEngineGenerationFinished EventType = "engine.generation_finished"
	EventEngineResponseFinished   EventType = "engine.response_finished"

	// Audio queue events
	EventAudioSegmentStarted  EventType = "audio.segment_started"
	EventAudioSegmentFinished EventType = "audio.segment_finished"
	EventAudioSegmentFailed   EventType = "audio.segment_failed"

	// Stream session events
	EventStreamSessionOpened EventType = "stream.session_opened"
	EventStreamSessionClosed EventType = "stream.session_closed"
	EventStreamFrameDropped  EventType = "stream.frame_dropped"

	// Preset library events
	EventPresetsReloaded EventType = "presets.reloaded"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// Publisher is the subset of EventBus components emit through.
type Publisher interface {
	Publish(event Event)
}

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	wg       sync.WaitGroup
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

func (b *EventBus) snapshot(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[t]))
	copy(handlers, b.handlers[t])
	return handlers
}

// Publish sends an event to all subscribed handlers without waiting for them.
// The run loop publishes through here so a slow listener never stalls a tick.
func (b *EventBus) Publish(event Event) {
	for _, handler := range b.snapshot(event.Type) {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			h(event)
		}(handler)
	}
}

// Wait blocks until every handler started by Publish has returned.
func (b *EventBus) Wait() {
	b.wg.Wait()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) {}
