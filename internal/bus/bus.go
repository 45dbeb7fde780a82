// Package bus provides the async event bus that fans committed marketplace
// events out to sinks (Kafka, Slack).
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event types.
const (
	EventAgentRegistered   = "agent.registered"
	EventCapabilityCreated = "capability.created"
	EventCapabilityUpdated = "capability.updated"
	EventCapabilityDeleted = "capability.deleted"
	EventRfpCreated        = "rfp.created"
	EventRfpUpdated        = "rfp.updated"
	EventProposalCreated   = "proposal.created"
	EventProposalUpdated   = "proposal.updated"
	EventSessionCreated    = "session.created"
	EventMessageSent       = "message.sent"

	// AllEvents subscribes a callback to every event type.
	AllEvents = "*"
)

// Event is a fact about a committed marketplace change.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	ActorID   string         `json:"actor_id"`
	EntityID  string         `json:"entity_id"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher is what services need from the bus.
type Publisher interface {
	Publish(evt *Event)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(*Event) {}

// EventBus decouples services from event sinks.
type EventBus struct {
	events  chan *Event
	subs    map[string][]func(context.Context, *Event)
	dropped int
	mu      sync.RWMutex
}

// NewEventBus creates a new event bus with the given buffer size.
func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = 100
	}
	return &EventBus{
		events: make(chan *Event, buffer),
		subs:   make(map[string][]func(context.Context, *Event)),
	}
}

// Publish enqueues evt without blocking. Events are dropped when the buffer
// is full so request handling never waits on a slow sink.
func (b *EventBus) Publish(evt *Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	select {
	case b.events <- evt:
	default:
		b.mu.Lock()
		b.dropped++
		b.mu.Unlock()
		slog.Warn("Event bus full, dropping event", "type", evt.Type, "entity", evt.EntityID)
	}
}

// Subscribe registers a callback for one event type, or AllEvents.
func (b *EventBus) Subscribe(eventType string, callback func(context.Context, *Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[eventType] = append(b.subs[eventType], callback)
}

// Dispatch delivers events to subscribers until ctx is cancelled.
// This should be run as a goroutine.
func (b *EventBus) Dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-b.events:
			b.deliver(ctx, evt)
		}
	}
}

// Drain delivers whatever is buffered and returns. Used on shutdown.
func (b *EventBus) Drain(ctx context.Context) {
	for {
		select {
		case evt := <-b.events:
			b.deliver(ctx, evt)
		default:
			return
		}
	}
}

func (b *EventBus) deliver(ctx context.Context, evt *Event) {
	b.mu.RLock()
	callbacks := append(append([]func(context.Context, *Event){}, b.subs[evt.Type]...), b.subs[AllEvents]...)
	b.mu.RUnlock()

	for _, cb := range callbacks {
		cb(ctx, evt)
	}
}

// Pending returns the number of buffered events.
func (b *EventBus) Pending() int {
	return len(b.events)
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *EventBus) Dropped() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}
