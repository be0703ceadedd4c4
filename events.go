package execution

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// OrderEventType names a lifecycle transition.
type OrderEventType string

const (
	CreateOrderSucceeded OrderEventType = "create_order_succeeded"
	CreateOrderFailed    OrderEventType = "create_order_failed"
	CancelOrderSucceeded OrderEventType = "cancel_order_succeeded"
	CancelOrderFailed    OrderEventType = "cancel_order_failed"
	OrderCompleted       OrderEventType = "order_completed"
)

// OrderEvent is published after a transition has been applied. Order is a
// snapshot taken in the same critical section as the transition.
type OrderEvent struct {
	ID        string          `json:"id"`
	Type      OrderEventType  `json:"type"`
	Source    EventSourceType `json:"source"`
	Order     OrderSnapshot   `json:"order"`
	CreatedAt time.Time       `json:"created_at"`
}

func newOrderEvent(eventType OrderEventType, source EventSourceType, snapshot OrderSnapshot) *OrderEvent {
	return &OrderEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Order:     snapshot,
		CreatedAt: time.Now().UTC(),
	}
}

// EventSink receives lifecycle events. Delivery is at least once, so
// implementations must tolerate an event id they have already seen.
type EventSink interface {
	Publish(...*OrderEvent)
}

// EventEmitter broadcasts lifecycle events to every subscribed sink. Producers
// only append to a ring buffer and never wait; sinks run on the emitter's
// consumer goroutine in publication order. When a slow sink lets the ring fill
// up, further events are dropped and counted.
type EventEmitter struct {
	mu      sync.RWMutex
	sinks   []EventSink
	ring    *RingBuffer[*OrderEvent]
	dropped atomic.Int64
}

// NewEventEmitter creates an emitter with a ring of the given capacity (a power of 2).
func NewEventEmitter(capacity int64) *EventEmitter {
	e := &EventEmitter{}
	e.ring = NewRingBuffer[*OrderEvent](capacity, e)
	return e
}

// Subscribe adds a sink. Sinks added later miss earlier events.
func (e *EventEmitter) Subscribe(sink EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks = append(e.sinks, sink)
}

// Emit queues an event for broadcast. It reports false when the event was
// dropped because the ring is full or shut down.
func (e *EventEmitter) Emit(event *OrderEvent) bool {
	if e.ring.TryPublish(event) {
		return true
	}
	e.dropped.Add(1)
	logger().Warn("event dropped",
		"event_type", event.Type,
		"client_order_id", event.Order.ClientOrderID,
		"pending_events", e.ring.PendingEvents(),
	)
	return false
}

// Dropped returns the number of events that could not be queued.
func (e *EventEmitter) Dropped() int64 {
	return e.dropped.Load()
}

// OnEvent fans an event out to the sinks.
func (e *EventEmitter) OnEvent(event *OrderEvent) {
	e.mu.RLock()
	sinks := e.sinks
	e.mu.RUnlock()

	for _, sink := range sinks {
		sink.Publish(event)
	}
}

// Start launches the broadcast goroutine.
func (e *EventEmitter) Start() {
	e.ring.Start()
}

// Shutdown stops accepting events and waits for queued events to be delivered.
func (e *EventEmitter) Shutdown(ctx context.Context) error {
	return e.ring.Shutdown(ctx)
}

// MemoryEventSink stores events in memory, useful for testing.
type MemoryEventSink struct {
	mu     sync.RWMutex
	Events []*OrderEvent
}

// NewMemoryEventSink creates a new MemoryEventSink.
func NewMemoryEventSink() *MemoryEventSink {
	return &MemoryEventSink{
		Events: make([]*OrderEvent, 0),
	}
}

// Publish appends events to the in-memory slice.
func (m *MemoryEventSink) Publish(events ...*OrderEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, event := range events {
		cpy := new(OrderEvent)
		*cpy = *event
		m.Events = append(m.Events, cpy)
	}
}

// Count returns the number of events stored.
func (m *MemoryEventSink) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Events)
}

// CountOf returns how many events of the given type were stored for the order.
func (m *MemoryEventSink) CountOf(eventType OrderEventType, clientOrderID ClientOrderID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, event := range m.Events {
		if event.Type == eventType && event.Order.ClientOrderID == clientOrderID {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of all events stored.
func (m *MemoryEventSink) Snapshot() []*OrderEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*OrderEvent, len(m.Events))
	copy(events, m.Events)
	return events
}

// DiscardEventSink discards all events, useful for benchmarking.
type DiscardEventSink struct {
}

// NewDiscardEventSink creates a new DiscardEventSink.
func NewDiscardEventSink() *DiscardEventSink {
	return &DiscardEventSink{}
}

// Publish does nothing.
func (p *DiscardEventSink) Publish(events ...*OrderEvent) {

}
