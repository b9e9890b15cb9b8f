/*
Package events provides the in-memory broker for Grove's allocator events.

The allocator publishes an event for every externally visible occurrence:
allocations committed and released, compute stripes, sessions issued,
security incidents and rescans, rebalance passes, and shutdown. Delivery
is best-effort pub/sub over buffered channels; nothing in the allocation
path ever waits on a subscriber.

# Architecture

	┌─────────────────── EVENT BROKER ────────────────────┐
	│                                                     │
	│  Publisher ──► event channel (buffer 100)           │
	│                     │                               │
	│                broadcast loop                       │
	│                     │                               │
	│      ┌──────────────┼──────────────┐                │
	│      ▼              ▼              ▼                │
	│  subscriber     subscriber     subscriber           │
	│  (buffer 50)    (buffer 50)    (buffer 50)          │
	│                                                     │
	│  Full buffer anywhere → drop, never block.          │
	└─────────────────────────────────────────────────────┘

# Event Types

	allocation.committed   memory reservation landed on a node
	allocation.released    handle returned, utilization restored
	compute.striped        complexity spread across compute spans
	session.issued         security gate minted a session token
	session.expired        an allocation call failed on a dead session
	security.incident      trust lowered on a node
	security.rescan        trust restored, scan time refreshed
	lifecycle.rebalanced   a balancer feedback pass completed
	lifecycle.shutdown     emergency cleanup ran

# Usage

Subscribing:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			fmt.Printf("[%s] %s %s\n", event.Timestamp, event.Type, event.Path)
		}
	}()

Publishing (the allocator does this after releasing its lock):

	broker.Publish(&events.Event{
		Type:     events.EventAllocationCommitted,
		Resource: types.ResourceMemory,
		Path:     handle.Path.String(),
		Owner:    handle.OwnerID,
		Metadata: map[string]string{"size": strconv.FormatUint(size, 10)},
	})

# Delivery Guarantees

None, deliberately. The broker trades guaranteed delivery for a hard
promise the allocator needs: Publish never blocks, not on a full broker
buffer, not on a slow subscriber, not on a stopped broker. Events are
observability, not state; the trees are the source of truth and the
journal subscriber persists what it manages to drain.

# Integration Points

  - pkg/allocator: the sole publisher
  - pkg/journal: subscriber persisting events to bbolt
  - cmd/grove: wires broker and journal together in the daemon
*/
package events
