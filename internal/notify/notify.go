package notify

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType names a bridge lifecycle event
type EventType string

const (
	EventClientRegistered   EventType = "client_registered"
	EventClientDisconnected EventType = "client_disconnected"
	EventEnvelopeProcessed  EventType = "envelope_processed"
	EventDeliveryFailed     EventType = "delivery_failed"
	EventEnvelopeQueued     EventType = "envelope_queued"
	EventQueueOverflow      EventType = "queue_overflow"
	EventLivenessWarning    EventType = "liveness_warning"
	EventMalformedFrame     EventType = "malformed_frame"
)

// Event is a notification emitted by the bridge core
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	ClientID   string    `json:"clientId,omitempty"`
	EnvelopeID string    `json:"envelopeId,omitempty"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	Intent     string    `json:"intent,omitempty"`
	Delivered  int       `json:"delivered,omitempty"`
	Queued     bool      `json:"queued,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Observer receives bridge events. Observe runs on the dispatcher goroutine.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Publisher accepts events without blocking the caller
type Publisher interface {
	Publish(Event)
}

// Dispatcher fans events out to observers through a bounded buffer.
// Events published while the buffer is full are dropped and counted.
type Dispatcher struct {
	events    chan Event
	observers []Observer
	mu        sync.RWMutex
	dropped   atomic.Int64
	done      chan struct{}
	// sendMu guards closed and the close of events against concurrent Publish
	sendMu sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher with the given buffer size
func NewDispatcher(buffer int, observers ...Observer) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Dispatcher{
		events:    make(chan Event, buffer),
		observers: observers,
		done:      make(chan struct{}),
	}
}

// Subscribe adds an observer
func (d *Dispatcher) Subscribe(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.observers = append(d.observers, o)
}

// Publish queues an event for delivery
func (d *Dispatcher) Publish(e Event) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	d.sendMu.RLock()
	defer d.sendMu.RUnlock()

	if d.closed {
		return
	}
	select {
	case d.events <- e:
	default:
		d.dropped.Add(1)
	}
}

// Run delivers events until Close is called, then drains what is buffered
func (d *Dispatcher) Run() {
	defer close(d.done)

	for e := range d.events {
		d.mu.RLock()
		observers := d.observers
		d.mu.RUnlock()

		for _, o := range observers {
			o.Observe(e)
		}
	}
}

// Close stops accepting events and waits for Run to drain the buffer.
// Run must have been started.
func (d *Dispatcher) Close() {
	d.sendMu.Lock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
	d.sendMu.Unlock()

	<-d.done
}

// Dropped returns how many events were discarded on a full buffer
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}
