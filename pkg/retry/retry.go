// Package retry executes asynchronous operations with bounded,
// jittered exponential backoff and cooperative cancellation. It is
// independent of the offline queue but subscribes to the status
// monitor so operations parked in a backoff wait resume promptly once
// connectivity returns.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linkguard-hq/linkguard/pkg/clock"
	"github.com/linkguard-hq/linkguard/pkg/logger"
	"github.com/linkguard-hq/linkguard/pkg/metrics"
	"github.com/linkguard-hq/linkguard/pkg/models"
	"github.com/linkguard-hq/linkguard/pkg/neterr"
)

// ErrAborted is returned when an operation is cancelled through
// CancelOperation rather than its context.
var ErrAborted = errors.New("operation aborted")

// DefaultReconnectStagger bounds the random delay before a parked
// operation is re-attempted after connectivity returns.
const DefaultReconnectStagger = 500 * time.Millisecond

// Status is the lifecycle state of a tracked operation. Transitions
// are monotonic: pending -> retrying -> one of the terminal states.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRetrying Status = "retrying"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusAborted  Status = "aborted"
)

// Operation is an arbitrary asynchronous unit of work.
type Operation func(ctx context.Context) (interface{}, error)

// Config tunes a single ExecuteWithRetry call.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay seeds the exponential backoff.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration

	// BackoffFactor is the exponential growth factor (> 1).
	BackoffFactor float64

	// Jitter multiplies each delay by a uniform factor in [0.5, 1.0].
	Jitter bool

	// RetryOn decides whether a failure is retryable. Nil means the
	// default taxonomy predicate (network failures, timeouts, 5xx,
	// 408 and 429).
	RetryOn func(error) bool
}

func (c Config) withDefaults() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.BackoffFactor <= 1 {
		c.BackoffFactor = 2
	}
	if c.RetryOn == nil {
		c.RetryOn = neterr.IsRetryable
	}
	return c
}

// Delay computes the backoff before retry number k (zero-indexed at
// the retry count, not the first try).
func Delay(cfg Config, k int) time.Duration {
	d := float64(cfg.BaseDelay) * math.Pow(cfg.BackoffFactor, float64(k))
	if d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		d *= 0.5 + 0.5*rand.Float64()
	}
	return time.Duration(d)
}

// Result is the outcome of an ExecuteWithRetry call. Failure is
// reported here, never panicked or thrown.
type Result struct {
	Success   bool
	Data      interface{}
	Err       error
	Attempts  int
	TotalTime time.Duration
}

// OperationInfo is a snapshot of a live operation for observability.
type OperationInfo struct {
	ID        string
	Attempts  int
	Status    Status
	LastError error
	StartedAt time.Time
}

// operation is the live record in the engine's table. Terminal
// operations are removed and never resurrected.
type operation struct {
	id         string
	startedAt  time.Time
	cancelOnce sync.Once
	cancelCh   chan struct{}
	resumeCh   chan struct{}

	mu       sync.Mutex
	attempts int
	status   Status
	lastErr  error
}

func (op *operation) snapshot() OperationInfo {
	op.mu.Lock()
	defer op.mu.Unlock()
	return OperationInfo{
		ID:        op.id,
		Attempts:  op.attempts,
		Status:    op.status,
		LastError: op.lastErr,
		StartedAt: op.startedAt,
	}
}

func (op *operation) set(status Status) {
	op.mu.Lock()
	op.status = status
	op.mu.Unlock()
}

func (op *operation) fail(err error) {
	op.mu.Lock()
	op.lastErr = err
	op.mu.Unlock()
}

func (op *operation) cancel() {
	op.cancelOnce.Do(func() { close(op.cancelCh) })
}

// StatusSource is the slice of the status monitor the engine needs.
type StatusSource interface {
	Subscribe(cb func(models.ConnectivityStatus)) func()
}

// Engine tracks in-flight retry operations and owns their backoff
// timers. One instance per process; construct it explicitly and call
// Dispose on shutdown.
type Engine struct {
	clk     clock.Clock
	logger  logger.Logger
	stagger time.Duration

	mu          sync.Mutex
	ops         map[string]*operation
	unsubscribe func()
	wasOnline   bool
	haveOnline  bool
}

// NewEngine creates a retry engine. A zero stagger selects the
// default reconnect stagger bound.
func NewEngine(stagger time.Duration, clk clock.Clock, log logger.Logger) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if stagger <= 0 {
		stagger = DefaultReconnectStagger
	}
	return &Engine{
		clk:     clk,
		logger:  log,
		stagger: stagger,
		ops:     make(map[string]*operation),
	}
}

// BindMonitor subscribes the engine to connectivity transitions so
// parked operations are nudged once the application is reachable
// again.
func (e *Engine) BindMonitor(src StatusSource) {
	e.mu.Lock()
	if e.unsubscribe != nil {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	unsub := src.Subscribe(func(status models.ConnectivityStatus) {
		e.onStatus(status)
	})

	e.mu.Lock()
	e.unsubscribe = unsub
	e.mu.Unlock()
}

// Dispose releases the monitor subscription.
func (e *Engine) Dispose() {
	e.mu.Lock()
	unsub := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (e *Engine) onStatus(status models.ConnectivityStatus) {
	e.mu.Lock()
	cameOnline := status.IsOnline && e.haveOnline && !e.wasOnline
	e.wasOnline = status.IsOnline
	e.haveOnline = true

	var parked []*operation
	if cameOnline {
		for _, op := range e.ops {
			info := op.snapshot()
			if info.LastError != nil && (info.Status == StatusPending || info.Status == StatusRetrying) {
				parked = append(parked, op)
			}
		}
	}
	e.mu.Unlock()

	if len(parked) == 0 {
		return
	}

	e.logger.InfoWith(logger.Retry, "Connectivity restored, resuming %d parked operation(s)", len(parked))
	for _, op := range parked {
		// Randomized stagger so reconnecting clients do not slam the
		// backend in the same instant
		go func(op *operation) {
			wait := time.Duration(rand.Int63n(int64(e.stagger)))
			select {
			case <-e.clk.After(wait):
			case <-op.cancelCh:
				return
			}
			select {
			case op.resumeCh <- struct{}{}:
			default:
			}
		}(op)
	}
}

// ExecuteWithRetry runs op under the given config. It never panics;
// the outcome, attempt count and elapsed time come back in a Result.
func (e *Engine) ExecuteWithRetry(ctx context.Context, op Operation, cfg Config) Result {
	cfg = cfg.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	rec := e.track()
	start := e.clk.Now()

	result := func(success bool, data interface{}, err error, attempts int) Result {
		return Result{
			Success:   success,
			Data:      data,
			Err:       err,
			Attempts:  attempts,
			TotalTime: e.clk.Now().Sub(start),
		}
	}

	attempts := 0
	for retryNum := 0; ; retryNum++ {
		// Cancellation is checked at the top of every attempt
		if err := e.cancelled(ctx, rec); err != nil {
			e.finish(rec, StatusAborted)
			return result(false, nil, err, attempts)
		}

		attempts++
		rec.mu.Lock()
		rec.attempts = attempts
		rec.mu.Unlock()
		metrics.RetryAttempts.Inc()

		data, err := op(ctx)
		if err == nil {
			e.finish(rec, StatusSuccess)
			return result(true, data, nil, attempts)
		}

		rec.fail(err)

		if !cfg.RetryOn(err) {
			e.logger.DebugWith(logger.Retry, "Operation %s failed terminally after %d attempt(s): %v", rec.id, attempts, err)
			e.finish(rec, StatusFailed)
			return result(false, nil, err, attempts)
		}

		if retryNum >= cfg.MaxRetries {
			metrics.MaxRetriesReached.Inc()
			e.logger.InfoWith(logger.Retry, "Operation %s exhausted %d retries: %v", rec.id, cfg.MaxRetries, err)
			e.finish(rec, StatusFailed)
			return result(false, nil, err, attempts)
		}

		rec.set(StatusRetrying)
		delay := Delay(cfg, retryNum)
		e.logger.DebugWith(logger.Retry, "Operation %s attempt %d failed, retrying in %v: %v", rec.id, attempts, delay, err)

		if err := e.wait(ctx, rec, delay); err != nil {
			e.finish(rec, StatusAborted)
			return result(false, nil, err, attempts)
		}
	}
}

// RetryAPICall runs op under a named preset and returns the data, or
// the final error once retries are exhausted. Convenience wrapper for
// call sites that want the value or nothing.
func (e *Engine) RetryAPICall(ctx context.Context, op Operation, preset Preset) (interface{}, error) {
	res := e.ExecuteWithRetry(ctx, op, PresetConfig(preset))
	if !res.Success {
		return nil, res.Err
	}
	return res.Data, nil
}

// CancelOperation cancels a live operation by id. Cancellation is
// cooperative: a network call already in flight is not torn down, but
// no further attempt is issued and an active backoff wait resolves
// immediately. Returns false when no live operation has that id.
func (e *Engine) CancelOperation(id string) bool {
	e.mu.Lock()
	op, ok := e.ops[id]
	e.mu.Unlock()

	if !ok {
		return false
	}
	op.cancel()
	e.logger.InfoWith(logger.Retry, "Operation %s cancelled", id)
	return true
}

// GetAllOperations returns a snapshot of every live operation.
func (e *Engine) GetAllOperations() []OperationInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	infos := make([]OperationInfo, 0, len(e.ops))
	for _, op := range e.ops {
		infos = append(infos, op.snapshot())
	}
	return infos
}

// GetActiveOperationsCount returns the number of operations currently
// pending or waiting to retry.
func (e *Engine) GetActiveOperationsCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ops)
}

func (e *Engine) track() *operation {
	rec := &operation{
		id:        uuid.New().String(),
		startedAt: e.clk.Now(),
		status:    StatusPending,
		cancelCh:  make(chan struct{}),
		resumeCh:  make(chan struct{}, 1),
	}

	e.mu.Lock()
	e.ops[rec.id] = rec
	e.mu.Unlock()

	metrics.ActiveOperations.Inc()
	return rec
}

// finish marks the terminal status and drops the record from the live
// table; terminal operations are never resurrected.
func (e *Engine) finish(rec *operation, status Status) {
	rec.set(status)

	e.mu.Lock()
	delete(e.ops, rec.id)
	e.mu.Unlock()

	metrics.ActiveOperations.Dec()
	metrics.RetryOperations.WithLabelValues(string(status)).Inc()
}

// cancelled reports the cancellation error if the context or the
// operation's own token has fired.
func (e *Engine) cancelled(ctx context.Context, rec *operation) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-rec.cancelCh:
		return ErrAborted
	default:
		return nil
	}
}

// wait blocks for the backoff delay. It returns early with nil when a
// reconnect nudge arrives, and with the cancellation error when the
// wait is aborted.
func (e *Engine) wait(ctx context.Context, rec *operation, delay time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-rec.cancelCh:
		return ErrAborted
	case <-rec.resumeCh:
		return nil
	case <-e.clk.After(delay):
		return nil
	}
}
