package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/verdantlabs/grove/pkg/events"
	"github.com/verdantlabs/grove/pkg/log"
)

var (
	// Bucket names, one per event family
	bucketAllocations = []byte("allocations")
	bucketSecurity    = []byte("security")
	bucketLifecycle   = []byte("lifecycle")
)

// Journal is a bbolt-backed append-only audit log of allocator events.
// Records are JSON-encoded and keyed by a per-bucket sequence number,
// so iteration replays them in publish order.
type Journal struct {
	db *bolt.DB
}

// Open creates or opens the journal database under dataDir.
func Open(dataDir string) (*Journal, error) {
	dbPath := filepath.Join(dataDir, "grove.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketAllocations,
			bucketSecurity,
			bucketLifecycle,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}

// bucketFor routes an event type to its bucket by family prefix.
func bucketFor(t events.EventType) []byte {
	s := string(t)
	switch {
	case strings.HasPrefix(s, "allocation.") || strings.HasPrefix(s, "compute."):
		return bucketAllocations
	case strings.HasPrefix(s, "security.") || strings.HasPrefix(s, "session."):
		return bucketSecurity
	default:
		return bucketLifecycle
	}
}

// Append writes one event to its bucket under the next sequence number.
func (j *Journal) Append(event *events.Event) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFor(event.Type))
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to advance sequence: %w", err)
		}
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
}

// list replays one bucket in sequence order.
func (j *Journal) list(bucket []byte) ([]*events.Event, error) {
	var out []*events.Event
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		return b.ForEach(func(k, v []byte) error {
			var event events.Event
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			out = append(out, &event)
			return nil
		})
	})
	return out, err
}

// Allocations replays the allocation/compute event family in order.
func (j *Journal) Allocations() ([]*events.Event, error) {
	return j.list(bucketAllocations)
}

// Security replays the security/session event family in order.
func (j *Journal) Security() ([]*events.Event, error) {
	return j.list(bucketSecurity)
}

// Lifecycle replays the lifecycle event family in order.
func (j *Journal) Lifecycle() ([]*events.Event, error) {
	return j.list(bucketLifecycle)
}

// Counts returns the number of records per bucket.
func (j *Journal) Counts() (allocations, security, lifecycle int, err error) {
	err = j.db.View(func(tx *bolt.Tx) error {
		allocations = tx.Bucket(bucketAllocations).Stats().KeyN
		security = tx.Bucket(bucketSecurity).Stats().KeyN
		lifecycle = tx.Bucket(bucketLifecycle).Stats().KeyN
		return nil
	})
	return allocations, security, lifecycle, err
}

// Record drains a broker subscription into the journal until the
// subscriber channel closes. Append failures are logged and skipped;
// the audit log never takes the allocator down.
func (j *Journal) Record(sub events.Subscriber) {
	logger := log.WithComponent("journal")
	for event := range sub {
		if err := j.Append(event); err != nil {
			logger.Error().Err(err).Str("type", string(event.Type)).Msg("failed to journal event")
		}
	}
}
