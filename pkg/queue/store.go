package queue

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/linkguard-hq/linkguard/pkg/logger"
	"github.com/linkguard-hq/linkguard/pkg/models"
)

var (
	bucketQueue = []byte("offline_queue")
	keyRequests = []byte("requests")
)

// Store persists the queue contents. The whole queue is written as a
// single keyed entry holding the serialized request array, so load
// order is exactly save order.
type Store interface {
	// Load reads the persisted queue. Corrupt or unreadable state
	// degrades to an empty queue instead of failing startup.
	Load() ([]*models.QueuedRequest, error)

	// Save writes the queue back after a mutation.
	Save(reqs []*models.QueuedRequest) error

	// Close releases the underlying storage.
	Close() error
}

// BoltStore implements Store using bbolt.
type BoltStore struct {
	db     *bbolt.DB
	logger logger.Logger
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens (or creates) the queue database at path.
func NewBoltStore(path string, log logger.Logger) (*BoltStore, error) {
	if log == nil {
		log = &logger.EmptyLogger{}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketQueue)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create queue bucket: %w", err)
	}

	return &BoltStore{db: db, logger: log}, nil
}

func (s *BoltStore) Load() ([]*models.QueuedRequest, error) {
	var reqs []*models.QueuedRequest

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return nil
		}

		data := bucket.Get(keyRequests)
		if data == nil {
			return nil
		}

		if err := json.Unmarshal(data, &reqs); err != nil {
			// Corrupt persisted state: start empty rather than crash
			s.logger.ErrorWith(logger.Queue, "Persisted queue is corrupt, starting empty: %v", err)
			reqs = nil
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}

	return reqs, nil
}

func (s *BoltStore) Save(reqs []*models.QueuedRequest) error {
	data, err := json.Marshal(reqs)
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket == nil {
			return fmt.Errorf("queue bucket not found")
		}
		return bucket.Put(keyRequests, data)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemoryStore is an in-process Store used when no database path is
// configured and in tests. It round-trips through JSON so it exercises
// the same serialization as the bbolt store.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() ([]*models.QueuedRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return nil, nil
	}
	var reqs []*models.QueuedRequest
	if err := json.Unmarshal(s.data, &reqs); err != nil {
		return nil, nil
	}
	return reqs, nil
}

func (s *MemoryStore) Save(reqs []*models.QueuedRequest) error {
	data, err := json.Marshal(reqs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
