/*
Package journal persists allocator events to a bbolt audit log.

The journal is the durable tail of the event broker: a subscriber drains
broker events and appends them, JSON-encoded, under monotonically
increasing sequence keys. It is an audit surface only — allocator state
is never persisted, and a restarted allocator always begins with fresh
trees. Replay answers "what happened", never "what is".

# Layout

One bucket per event family, routed by type prefix:

	allocations   allocation.*, compute.*
	security      security.*, session.*
	lifecycle     everything else (rebalance, shutdown)

Keys are 8-byte big-endian sequence numbers from bbolt's per-bucket
NextSequence, so a cursor walk replays each family in publish order.

# Usage

The daemon wires the pipeline:

	j, err := journal.Open(dataDir)
	if err != nil {
		return err
	}
	defer j.Close()

	sub := broker.Subscribe()
	go j.Record(sub) // exits when the subscription closes

Replaying an audit trail:

	incidents, err := j.Security()
	for _, e := range incidents {
		fmt.Println(e.Timestamp, e.Type, e.Metadata)
	}

# Failure Policy

Append failures inside Record are logged and dropped. The journal is
optional, best-effort infrastructure; a full disk must not stall the
broker or the allocator behind it.

# Integration Points

  - pkg/events: the broker being drained
  - cmd/grove: opens the journal and starts Record in the daemon
*/
package journal
