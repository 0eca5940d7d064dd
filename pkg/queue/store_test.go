package queue

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/linkguard-hq/linkguard/pkg/models"
)

func sampleRequests() []*models.QueuedRequest {
	return []*models.QueuedRequest{
		{
			ID:         "req-1",
			URL:        "https://api.example.com/a",
			Method:     "POST",
			Body:       []byte(`{"a":1}`),
			Headers:    map[string]string{"Content-Type": "application/json"},
			EnqueuedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			RetryCount: 1,
			MaxRetries: 3,
			Priority:   models.PriorityHigh,
		},
		{
			ID:         "req-2",
			URL:        "https://api.example.com/b",
			Method:     "DELETE",
			EnqueuedAt: time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC),
			MaxRetries: 3,
			Priority:   models.PriorityLow,
		},
	}
}

func TestBoltStore(t *testing.T) {
	t.Run("load returns nil on a fresh database", func(t *testing.T) {
		store, err := NewBoltStore(filepath.Join(t.TempDir(), "queue.db"), nil)
		require.NoError(t, err)
		defer store.Close()

		items, err := store.Load()
		require.NoError(t, err)
		assert.Nil(t, items)
	})

	t.Run("save order is load order", func(t *testing.T) {
		store, err := NewBoltStore(filepath.Join(t.TempDir(), "queue.db"), nil)
		require.NoError(t, err)
		defer store.Close()

		want := sampleRequests()
		require.NoError(t, store.Save(want))

		got, err := store.Load()
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "req-1", got[0].ID)
		assert.Equal(t, "req-2", got[1].ID)
		assert.Equal(t, 1, got[0].RetryCount)
		assert.Equal(t, models.PriorityHigh, got[0].Priority)
	})

	t.Run("non-JSON bodies survive the round trip", func(t *testing.T) {
		store, err := NewBoltStore(filepath.Join(t.TempDir(), "queue.db"), nil)
		require.NoError(t, err)
		defer store.Close()

		want := []*models.QueuedRequest{
			{
				ID:         "req-form",
				URL:        "https://api.example.com/form",
				Method:     "POST",
				Body:       []byte("a=b&c=d"),
				EnqueuedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
				MaxRetries: 3,
				Priority:   models.PriorityMedium,
			},
			{
				ID:         "req-binary",
				URL:        "https://api.example.com/blob",
				Method:     "PUT",
				Body:       []byte{0x00, 0xff, 0x10, 0x80},
				EnqueuedAt: time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC),
				MaxRetries: 3,
				Priority:   models.PriorityLow,
			},
		}
		require.NoError(t, store.Save(want))

		got, err := store.Load()
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, []byte("a=b&c=d"), got[0].Body)
		assert.Equal(t, []byte{0x00, 0xff, 0x10, 0x80}, got[1].Body)
	})

	t.Run("corrupt payload degrades to an empty queue", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "queue.db")

		db, err := bbolt.Open(path, 0600, nil)
		require.NoError(t, err)
		require.NoError(t, db.Update(func(tx *bbolt.Tx) error {
			bucket, err := tx.CreateBucketIfNotExists(bucketQueue)
			if err != nil {
				return err
			}
			return bucket.Put(keyRequests, []byte("not json at all"))
		}))
		require.NoError(t, db.Close())

		store, err := NewBoltStore(path, nil)
		require.NoError(t, err)
		defer store.Close()

		items, err := store.Load()
		require.NoError(t, err)
		assert.Nil(t, items)
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	items, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, items)

	require.NoError(t, store.Save(sampleRequests()))

	got, err := store.Load()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "req-1", got[0].ID)
	assert.Equal(t, []byte(`{"a":1}`), got[0].Body)

	require.NoError(t, store.Save(nil))
	got, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.NoError(t, store.Close())
}
