// Package clock abstracts wall-clock time so components that sleep or
// schedule timers can be driven deterministically in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock provides the two time primitives the resilience components
// need: the current time and a one-shot timer channel.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// System is a Clock backed by the real time package.
type System struct{}

var _ Clock = System{}

func (System) Now() time.Time { return time.Now() }

func (System) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Fake is a manually advanced Clock for tests. Timers created with
// After fire when Advance moves the fake time past their deadline.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	deadline time.Time
	ch       chan time.Time
}

var _ Clock = (*Fake)(nil)

// NewFake creates a fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTimer{deadline: f.now.Add(d), ch: make(chan time.Time, 1)}
	if d <= 0 {
		t.ch <- f.now
		return t.ch
	}
	f.timers = append(f.timers, t)
	return t.ch
}

// Advance moves the fake time forward and fires every timer whose
// deadline has passed, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)

	sort.Slice(f.timers, func(i, j int) bool {
		return f.timers[i].deadline.Before(f.timers[j].deadline)
	})

	remaining := f.timers[:0]
	for _, t := range f.timers {
		if !t.deadline.After(f.now) {
			t.ch <- f.now
		} else {
			remaining = append(remaining, t)
		}
	}
	f.timers = remaining
}

// PendingTimers returns the number of timers that have not fired yet.
// Tests use it to wait for a goroutine to enter a timed wait before
// advancing the clock.
func (f *Fake) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// BlockUntil polls until at least n timers are pending. It gives up
// after a generous real-time bound so a broken test fails instead of
// hanging.
func (f *Fake) BlockUntil(n int) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if f.PendingTimers() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
