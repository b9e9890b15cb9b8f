package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verdantlabs/grove/pkg/types"
)

// EventType represents the type of allocator event
type EventType string

const (
	EventAllocationCommitted EventType = "allocation.committed"
	EventAllocationReleased  EventType = "allocation.released"
	EventComputeStriped      EventType = "compute.striped"
	EventSessionIssued       EventType = "session.issued"
	EventSessionExpired      EventType = "session.expired"
	EventSecurityIncident    EventType = "security.incident"
	EventSecurityRescan      EventType = "security.rescan"
	EventRebalanced          EventType = "lifecycle.rebalanced"
	EventShutdown            EventType = "lifecycle.shutdown"
)

// Event represents one allocator occurrence. Path and Owner are set for
// allocation-shaped events; Metadata carries everything else.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Resource  types.ResourceKind
	Path      string
	Owner     string
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker. Safe to call more than once; Shutdown and the
// emergency-cleanup path may both reach it.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish publishes an event to all subscribers. Never blocks past the
// broker buffer: the allocator calls this after releasing its lock, and
// a stopped broker swallows the event.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	default:
		// Broker buffer full, drop rather than stall the caller
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
