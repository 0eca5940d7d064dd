package retry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkguard-hq/linkguard/pkg/models"
	"github.com/linkguard-hq/linkguard/pkg/neterr"
)

// fastConfig keeps test runtime negligible while exercising the full
// retry loop
func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:    maxRetries,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
}

func TestExecuteWithRetry(t *testing.T) {
	engine := NewEngine(0, nil, nil)

	t.Run("success on first attempt", func(t *testing.T) {
		calls := 0
		res := engine.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
			calls++
			return "ok", nil
		}, fastConfig(3))

		assert.True(t, res.Success)
		assert.Equal(t, "ok", res.Data)
		assert.NoError(t, res.Err)
		assert.Equal(t, 1, res.Attempts)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient failures until success", func(t *testing.T) {
		calls := 0
		res := engine.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
			calls++
			if calls < 3 {
				return nil, neterr.HTTPStatus(503, errors.New("service unavailable"))
			}
			return "recovered", nil
		}, fastConfig(3))

		assert.True(t, res.Success)
		assert.Equal(t, "recovered", res.Data)
		assert.Equal(t, 3, res.Attempts)
	})

	t.Run("exhausting retries yields attempts equal to budget plus one", func(t *testing.T) {
		failure := neterr.Network(errors.New("connection refused"))
		calls := 0
		res := engine.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
			calls++
			return nil, failure
		}, fastConfig(3))

		assert.False(t, res.Success)
		assert.Equal(t, failure, res.Err)
		assert.Equal(t, 4, res.Attempts)
		assert.Equal(t, 4, calls)
	})

	t.Run("non-retryable failure stops after one attempt", func(t *testing.T) {
		calls := 0
		res := engine.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
			calls++
			return nil, neterr.HTTPStatus(404, errors.New("not found"))
		}, fastConfig(3))

		assert.False(t, res.Success)
		assert.Equal(t, 1, res.Attempts)
		assert.Equal(t, 1, calls)
	})

	t.Run("always-false predicate means a single attempt", func(t *testing.T) {
		cfg := fastConfig(5)
		cfg.RetryOn = func(error) bool { return false }

		calls := 0
		res := engine.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
			calls++
			return nil, neterr.Network(errors.New("down"))
		}, cfg)

		assert.False(t, res.Success)
		assert.Equal(t, 1, calls)
	})

	t.Run("zero max retries", func(t *testing.T) {
		calls := 0
		res := engine.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
			calls++
			return nil, neterr.Network(errors.New("down"))
		}, fastConfig(0))

		assert.False(t, res.Success)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops before the next attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		res := engine.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
			calls++
			cancel()
			return nil, neterr.Network(errors.New("down"))
		}, fastConfig(5))

		assert.False(t, res.Success)
		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("operation table is empty after completion", func(t *testing.T) {
		assert.Equal(t, 0, engine.GetActiveOperationsCount())
		assert.Empty(t, engine.GetAllOperations())
	})
}

func TestCancelOperation(t *testing.T) {
	engine := NewEngine(0, nil, nil)

	t.Run("cancel during backoff aborts without another attempt", func(t *testing.T) {
		cfg := Config{
			MaxRetries:    5,
			BaseDelay:     10 * time.Second,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2,
		}

		var calls atomic.Int32
		done := make(chan Result, 1)
		go func() {
			done <- engine.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
				calls.Add(1)
				return nil, neterr.Network(errors.New("down"))
			}, cfg)
		}()

		id := waitForStatus(t, engine, StatusRetrying)
		require.True(t, engine.CancelOperation(id))

		select {
		case res := <-done:
			assert.False(t, res.Success)
			assert.ErrorIs(t, res.Err, ErrAborted)
			assert.Equal(t, 1, res.Attempts)
			assert.Equal(t, int32(1), calls.Load())
		case <-time.After(2 * time.Second):
			t.Fatal("cancelled operation did not return promptly")
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		assert.False(t, engine.CancelOperation("nope"))
	})

	t.Run("cancelling twice is harmless", func(t *testing.T) {
		done := make(chan Result, 1)
		go func() {
			done <- engine.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
				return nil, neterr.Network(errors.New("down"))
			}, Config{MaxRetries: 5, BaseDelay: 10 * time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2})
		}()

		id := waitForStatus(t, engine, StatusRetrying)
		assert.True(t, engine.CancelOperation(id))
		engine.CancelOperation(id)
		<-done
	})
}

// waitForStatus polls the operation table until one operation reaches
// the wanted status and returns its id
func waitForStatus(t *testing.T, engine *Engine, want Status) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, info := range engine.GetAllOperations() {
			if info.Status == want {
				return info.ID
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no operation reached status %s", want)
	return ""
}

// fakeStatus drives the engine's reconnect subscription
type fakeStatus struct {
	mu   sync.Mutex
	subs []func(models.ConnectivityStatus)
	cur  models.ConnectivityStatus
}

func (f *fakeStatus) Subscribe(cb func(models.ConnectivityStatus)) func() {
	f.mu.Lock()
	f.subs = append(f.subs, cb)
	cur := f.cur
	f.mu.Unlock()
	cb(cur)
	return func() {}
}

func (f *fakeStatus) set(online bool) {
	f.mu.Lock()
	f.cur = models.ConnectivityStatus{IsOnline: online}
	cbs := make([]func(models.ConnectivityStatus), len(f.subs))
	copy(cbs, f.subs)
	f.mu.Unlock()

	for _, cb := range cbs {
		cb(f.cur)
	}
}

func TestReconnectResumesBackoff(t *testing.T) {
	engine := NewEngine(time.Millisecond, nil, nil)
	status := &fakeStatus{}
	engine.BindMonitor(status)
	defer engine.Dispose()

	var calls atomic.Int32
	done := make(chan Result, 1)
	start := time.Now()
	go func() {
		done <- engine.ExecuteWithRetry(context.Background(), func(ctx context.Context) (interface{}, error) {
			if calls.Add(1) == 1 {
				return nil, neterr.Network(errors.New("offline"))
			}
			return "sent", nil
		}, Config{MaxRetries: 3, BaseDelay: time.Minute, MaxDelay: time.Minute, BackoffFactor: 2})
	}()

	waitForStatus(t, engine, StatusRetrying)

	// Offline then online: the transition should cut the minute-long
	// backoff short
	status.set(false)
	status.set(true)

	select {
	case res := <-done:
		assert.True(t, res.Success)
		assert.Equal(t, "sent", res.Data)
		assert.Equal(t, 2, res.Attempts)
		assert.Less(t, time.Since(start), 10*time.Second)
	case <-time.After(10 * time.Second):
		t.Fatal("parked operation was not resumed on reconnect")
	}
}

func TestRetryAPICall(t *testing.T) {
	engine := NewEngine(0, nil, nil)

	t.Run("returns data on success", func(t *testing.T) {
		data, err := engine.RetryAPICall(context.Background(), func(ctx context.Context) (interface{}, error) {
			return 42, nil
		}, PresetQuick)
		require.NoError(t, err)
		assert.Equal(t, 42, data)
	})

	t.Run("returns final error on terminal failure", func(t *testing.T) {
		want := neterr.HTTPStatus(400, errors.New("bad request"))
		data, err := engine.RetryAPICall(context.Background(), func(ctx context.Context) (interface{}, error) {
			return nil, want
		}, PresetQuick)
		assert.Nil(t, data)
		assert.Equal(t, want, err)
	})
}

func TestDelay(t *testing.T) {
	cfg := Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	t.Run("grows exponentially and caps", func(t *testing.T) {
		assert.Equal(t, 100*time.Millisecond, Delay(cfg, 0))
		assert.Equal(t, 200*time.Millisecond, Delay(cfg, 1))
		assert.Equal(t, 400*time.Millisecond, Delay(cfg, 2))
		assert.Equal(t, 800*time.Millisecond, Delay(cfg, 3))
		assert.Equal(t, time.Second, Delay(cfg, 4))
		assert.Equal(t, time.Second, Delay(cfg, 10))
	})

	t.Run("jitter stays within half to full delay", func(t *testing.T) {
		jittered := cfg
		jittered.Jitter = true
		for i := 0; i < 100; i++ {
			d := Delay(jittered, 2)
			assert.GreaterOrEqual(t, d, 200*time.Millisecond)
			assert.LessOrEqual(t, d, 400*time.Millisecond)
		}
	})
}

func TestPresets(t *testing.T) {
	t.Run("delay caps are ordered", func(t *testing.T) {
		quick := PresetConfig(PresetQuick)
		standard := PresetConfig(PresetStandard)
		aggressive := PresetConfig(PresetAggressive)

		assert.LessOrEqual(t, quick.MaxDelay, standard.MaxDelay)
		assert.LessOrEqual(t, standard.MaxDelay, aggressive.MaxDelay)
	})

	t.Run("unknown preset falls back to standard", func(t *testing.T) {
		assert.Equal(t, PresetConfig(PresetStandard), PresetConfig(Preset("bogus")))
	})

	t.Run("parse", func(t *testing.T) {
		assert.Equal(t, PresetQuick, ParsePreset("quick"))
		assert.Equal(t, PresetAggressive, ParsePreset("aggressive"))
		assert.Equal(t, PresetConservative, ParsePreset("conservative"))
		assert.Equal(t, PresetStandard, ParsePreset(""))
		assert.Equal(t, PresetStandard, ParsePreset("nonsense"))
	})
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, 500*time.Millisecond, cfg.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.BackoffFactor)
	assert.NotNil(t, cfg.RetryOn)
	assert.True(t, cfg.RetryOn(neterr.Network(errors.New("down"))))
	assert.False(t, cfg.RetryOn(errors.New("plain")))
}
