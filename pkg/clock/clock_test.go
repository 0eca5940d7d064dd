package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeNow(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := NewFake(start)

	assert.Equal(t, start, fake.Now())

	fake.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), fake.Now())
}

func TestFakeAfter(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("fires when advanced past deadline", func(t *testing.T) {
		fake := NewFake(start)
		ch := fake.After(10 * time.Second)

		select {
		case <-ch:
			t.Fatal("timer fired before advance")
		default:
		}

		fake.Advance(10 * time.Second)
		select {
		case fired := <-ch:
			assert.Equal(t, start.Add(10*time.Second), fired)
		default:
			t.Fatal("timer did not fire after advance")
		}
	})

	t.Run("does not fire early", func(t *testing.T) {
		fake := NewFake(start)
		ch := fake.After(10 * time.Second)

		fake.Advance(9 * time.Second)
		select {
		case <-ch:
			t.Fatal("timer fired before its deadline")
		default:
		}
		assert.Equal(t, 1, fake.PendingTimers())
	})

	t.Run("non-positive delay fires immediately", func(t *testing.T) {
		fake := NewFake(start)
		select {
		case <-fake.After(0):
		default:
			t.Fatal("zero-duration timer should be ready")
		}
	})

	t.Run("multiple timers fire in deadline order", func(t *testing.T) {
		fake := NewFake(start)
		late := fake.After(20 * time.Second)
		early := fake.After(5 * time.Second)

		fake.Advance(30 * time.Second)

		earlyAt := <-early
		lateAt := <-late
		assert.True(t, earlyAt.Equal(lateAt), "both fire at the advanced time")
		assert.Equal(t, 0, fake.PendingTimers())
	})
}

func TestFakeBlockUntil(t *testing.T) {
	fake := NewFake(time.Now())

	go func() {
		fake.After(time.Hour)
	}()

	require.True(t, fake.BlockUntil(1))
	assert.Equal(t, 1, fake.PendingTimers())
}

func TestSystemClock(t *testing.T) {
	sys := System{}

	before := time.Now()
	now := sys.Now()
	assert.False(t, now.Before(before))

	select {
	case <-sys.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("system timer did not fire")
	}
}
