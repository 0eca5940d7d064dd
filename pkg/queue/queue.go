// Package queue is the durable holding area for mutating requests
// that could not be sent due to connectivity loss. Requests replay in
// priority order, FIFO within a tier, once the application is
// reachable again.
package queue

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/linkguard-hq/linkguard/pkg/clock"
	"github.com/linkguard-hq/linkguard/pkg/logger"
	"github.com/linkguard-hq/linkguard/pkg/metrics"
	"github.com/linkguard-hq/linkguard/pkg/models"
)

const (
	// DefaultReplayDelay spaces successive replays so a reconnect
	// does not burst the server.
	DefaultReplayDelay = 100 * time.Millisecond

	// DefaultMaxRetries is the replay budget for a queued request.
	DefaultMaxRetries = 3
)

// Sender issues the raw network call for one queued request. The HTTP
// client wrapper implements it; replays deliberately bypass the retry
// engine because the queue carries its own per-request retry budget.
type Sender interface {
	Send(ctx context.Context, req *models.QueuedRequest) error
}

// StatusSource is the slice of the status monitor the queue needs.
type StatusSource interface {
	GetStatus() models.ConnectivityStatus
	Subscribe(cb func(models.ConnectivityStatus)) func()
}

// EnqueueOptions carries the optional knobs for Enqueue.
type EnqueueOptions struct {
	Priority   models.Priority // default medium
	MaxRetries int             // default 3
}

// OfflineQueue owns the persisted request list. All mutation goes
// through its methods; the list is written back to the store after
// every change.
type OfflineQueue struct {
	store       Store
	sender      Sender
	status      StatusSource
	clk         clock.Clock
	logger      logger.Logger
	replayDelay time.Duration

	mu    sync.Mutex
	items []*models.QueuedRequest

	// processing collapses overlapping ProcessQueue calls into a
	// single pass
	processing  atomic.Bool
	unsubscribe func()
	wasOnline   bool
	haveOnline  bool
}

// New loads the persisted queue and subscribes to connectivity
// transitions so replay starts as soon as the application is
// reachable.
func New(store Store, sender Sender, status StatusSource, replayDelay time.Duration, clk clock.Clock, log logger.Logger) *OfflineQueue {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if replayDelay <= 0 {
		replayDelay = DefaultReplayDelay
	}

	q := &OfflineQueue{
		store:       store,
		sender:      sender,
		status:      status,
		clk:         clk,
		logger:      log,
		replayDelay: replayDelay,
	}

	items, err := store.Load()
	if err != nil {
		log.ErrorWith(logger.Queue, "Failed to load persisted queue, starting empty: %v", err)
		items = nil
	}
	// Stored order is already priority-then-FIFO; the stable sort
	// only repairs hand-edited or out-of-order state
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Priority.Rank() < items[j].Priority.Rank()
	})
	q.items = items
	metrics.QueueSize.Set(float64(len(items)))
	if len(items) > 0 {
		log.InfoWith(logger.Queue, "Loaded %d queued request(s) from storage", len(items))
	}

	if status != nil {
		q.unsubscribe = status.Subscribe(func(st models.ConnectivityStatus) {
			q.onStatus(st)
		})
	}

	return q
}

// Dispose releases the monitor subscription. The store is owned by
// the caller and closed separately.
func (q *OfflineQueue) Dispose() {
	if q.unsubscribe != nil {
		q.unsubscribe()
		q.unsubscribe = nil
	}
}

func (q *OfflineQueue) onStatus(st models.ConnectivityStatus) {
	q.mu.Lock()
	cameOnline := st.IsOnline && q.haveOnline && !q.wasOnline
	q.wasOnline = st.IsOnline
	q.haveOnline = true
	pending := len(q.items)
	q.mu.Unlock()

	if cameOnline && pending > 0 {
		q.logger.InfoWith(logger.Queue, "Back online with %d queued request(s), starting replay", pending)
		go q.ProcessQueue(context.Background())
	}
}

// Enqueue appends a deferred request and persists it. It always
// succeeds; when already online it also kicks off a replay pass.
func (q *OfflineQueue) Enqueue(url, method string, body []byte, headers map[string]string, opts EnqueueOptions) string {
	if !opts.Priority.Valid() {
		opts.Priority = models.PriorityMedium
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = DefaultMaxRetries
	}

	req := &models.QueuedRequest{
		ID:         uuid.New().String(),
		URL:        url,
		Method:     method,
		Body:       body,
		Headers:    headers,
		EnqueuedAt: q.clk.Now(),
		RetryCount: 0,
		MaxRetries: opts.MaxRetries,
		Priority:   opts.Priority,
	}

	q.mu.Lock()
	q.insertLocked(req)
	q.persistLocked()
	q.mu.Unlock()

	metrics.QueueEnqueued.WithLabelValues(string(req.Priority)).Inc()
	q.logger.InfoWith(logger.Queue, "Enqueued %s %s (priority %s, id %s)", method, url, req.Priority, req.ID)

	if q.status != nil && q.status.GetStatus().IsOnline {
		go q.ProcessQueue(context.Background())
	}

	return req.ID
}

// insertLocked places req after every existing request of equal or
// higher priority, preserving FIFO order within a tier.
func (q *OfflineQueue) insertLocked(req *models.QueuedRequest) {
	idx := len(q.items)
	for i, existing := range q.items {
		if existing.Priority.Rank() > req.Priority.Rank() {
			idx = i
			break
		}
	}
	q.items = append(q.items, nil)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = req
}

// ProcessQueue replays queued requests in order. It is a no-op while
// another pass is running or while offline. Per-item failures are
// logged and never propagated; a bad request cannot block the rest of
// the batch.
func (q *OfflineQueue) ProcessQueue(ctx context.Context) {
	if !q.processing.CompareAndSwap(false, true) {
		return
	}
	defer q.processing.Store(false)

	if q.status != nil && !q.status.GetStatus().IsOnline {
		return
	}

	q.mu.Lock()
	snapshot := make([]*models.QueuedRequest, len(q.items))
	copy(snapshot, q.items)
	q.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	q.logger.InfoWith(logger.Queue, "Replaying %d queued request(s)", len(snapshot))
	removed := make(map[string]bool)

	for i, req := range snapshot {
		if ctx.Err() != nil {
			break
		}

		err := q.sender.Send(ctx, req)
		if err == nil {
			removed[req.ID] = true
			metrics.QueueReplayed.WithLabelValues("success").Inc()
			q.logger.InfoWith(logger.Queue, "Replayed %s %s (id %s)", req.Method, req.URL, req.ID)
		} else {
			q.mu.Lock()
			req.RetryCount++
			exhausted := req.RetryCount >= req.MaxRetries
			q.mu.Unlock()

			if exhausted {
				// Give up silently after the bound; the drop is
				// logged, not raised
				removed[req.ID] = true
				metrics.QueueReplayed.WithLabelValues("dropped").Inc()
				metrics.QueueDropped.Inc()
				q.logger.ErrorWith(logger.Queue, "Dropping %s %s after %d failed replay(s): %v", req.Method, req.URL, req.RetryCount, err)
			} else {
				metrics.QueueReplayed.WithLabelValues("failed").Inc()
				q.logger.ErrorWith(logger.Queue, "Replay of %s %s failed (%d/%d): %v", req.Method, req.URL, req.RetryCount, req.MaxRetries, err)
			}
		}

		if i < len(snapshot)-1 {
			select {
			case <-ctx.Done():
			case <-q.clk.After(q.replayDelay):
			}
		}
	}

	q.mu.Lock()
	kept := q.items[:0]
	for _, req := range q.items {
		if !removed[req.ID] {
			kept = append(kept, req)
		}
	}
	q.items = kept
	q.persistLocked()
	q.mu.Unlock()
}

// RemoveFromQueue deletes a queued request by id.
func (q *OfflineQueue) RemoveFromQueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, req := range q.items {
		if req.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			q.persistLocked()
			return true
		}
	}
	return false
}

// ClearQueue drops every queued request.
func (q *OfflineQueue) ClearQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = nil
	q.persistLocked()
}

// GetQueueStatus summarizes the queue for status indicators.
func (q *OfflineQueue) GetQueueStatus() models.QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	status := models.QueueStatus{
		Total:           len(q.items),
		CountByPriority: make(map[models.Priority]int),
	}
	for _, req := range q.items {
		status.CountByPriority[req.Priority]++
		if status.OldestEnqueuedAt == nil || req.EnqueuedAt.Before(*status.OldestEnqueuedAt) {
			t := req.EnqueuedAt
			status.OldestEnqueuedAt = &t
		}
	}
	return status
}

// persistLocked writes the queue back and keeps the size gauge
// current. Persistence failures are logged; the in-memory queue stays
// authoritative for this process.
func (q *OfflineQueue) persistLocked() {
	if err := q.store.Save(q.items); err != nil {
		q.logger.ErrorWith(logger.Queue, "Failed to persist queue: %v", err)
	}
	metrics.QueueSize.Set(float64(len(q.items)))
}
