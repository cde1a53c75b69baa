package debounce

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthrelay/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestDoSkipsProcessedKeyWithinWindow(t *testing.T) {
	clock := newFakeClock()
	d := New(10*time.Second, 5*time.Second, WithClock(clock.Now))
	defer d.Close()

	runs := 0
	fn := func(context.Context) (bool, error) {
		runs++
		return true, nil
	}

	outcome, err := d.Do(context.Background(), "user-1|activities|2025-06-20", fn)
	require.NoError(t, err)
	require.Equal(t, Ran, outcome)

	clock.Advance(3 * time.Second)
	outcome, err = d.Do(context.Background(), "user-1|activities|2025-06-20", fn)
	require.NoError(t, err)
	require.Equal(t, Skipped, outcome)
	require.Equal(t, 1, runs)
}

func TestDoRunsAgainAfterWindow(t *testing.T) {
	clock := newFakeClock()
	d := New(10*time.Second, 5*time.Second, WithClock(clock.Now))
	defer d.Close()

	runs := 0
	fn := func(context.Context) (bool, error) {
		runs++
		return true, nil
	}

	_, err := d.Do(context.Background(), "key", fn)
	require.NoError(t, err)

	clock.Advance(11 * time.Second)
	outcome, err := d.Do(context.Background(), "key", fn)
	require.NoError(t, err)
	require.Equal(t, Ran, outcome)
	require.Equal(t, 2, runs)
}

func TestDoIneffectiveRunLeavesWindowOpen(t *testing.T) {
	clock := newFakeClock()
	d := New(10*time.Second, 5*time.Second, WithClock(clock.Now))
	defer d.Close()

	runs := 0
	_, err := d.Do(context.Background(), "key", func(context.Context) (bool, error) {
		runs++
		return false, nil
	})
	require.NoError(t, err)

	outcome, err := d.Do(context.Background(), "key", func(context.Context) (bool, error) {
		runs++
		return true, nil
	})
	require.NoError(t, err)
	require.Equal(t, Ran, outcome)
	require.Equal(t, 2, runs)
}

func TestDoDoesNotBlockUnrelatedKeys(t *testing.T) {
	d := New(10*time.Second, 5*time.Second)
	defer d.Close()

	holding := make(chan struct{})
	releaseHold := make(chan struct{})
	go func() {
		_, _ = d.Do(context.Background(), "slow-key", func(context.Context) (bool, error) {
			close(holding)
			<-releaseHold
			return true, nil
		})
	}()
	<-holding
	defer close(releaseHold)

	done := make(chan struct{})
	go func() {
		_, _ = d.Do(context.Background(), "other-key", func(context.Context) (bool, error) {
			return true, nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unrelated key blocked by in-flight key")
	}
}

func TestConcurrentIdenticalFingerprintsRunOnce(t *testing.T) {
	d := New(10*time.Second, 5*time.Second)
	defer d.Close()

	var sideEffects atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _ = d.Do(context.Background(), "owner-1|activities|2025-06-20", func(context.Context) (bool, error) {
				sideEffects.Add(1)
				return true, nil
			})
		}()
	}

	close(start)
	wg.Wait()
	require.Equal(t, int32(1), sideEffects.Load())
}

func TestSuppressContentWithinWindow(t *testing.T) {
	clock := newFakeClock()
	d := New(10*time.Second, 5*time.Second, WithClock(clock.Now))
	defer d.Close()

	require.False(t, d.SuppressContent("New Spinning activity from @jane"))
	require.True(t, d.SuppressContent("New Spinning activity from @jane"))
	require.False(t, d.SuppressContent("New Walking activity from @jane"))

	clock.Advance(6 * time.Second)
	require.False(t, d.SuppressContent("New Spinning activity from @jane"))
}

func TestSweepEvictsIdleState(t *testing.T) {
	clock := newFakeClock()
	d := New(10*time.Second, 5*time.Second, WithClock(clock.Now))
	defer d.Close()

	_, err := d.Do(context.Background(), "key", func(context.Context) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	d.SuppressContent("text")

	clock.Advance(time.Minute)
	d.sweep()

	d.mu.Lock()
	require.Empty(t, d.keys)
	d.mu.Unlock()
	d.contentMu.Lock()
	require.Empty(t, d.contents)
	d.contentMu.Unlock()
}

func TestStatusTrackerEmitsOncePerDay(t *testing.T) {
	tracker := NewStatusTracker()
	today := domain.Day{Year: 2025, Month: 6, Date: 20}

	require.True(t, tracker.MarkAuthFailure("user-1", today))
	require.False(t, tracker.MarkAuthFailure("user-1", today))
	require.True(t, tracker.MarkAuthFailure("user-1", today.AddDays(1)))
}

func TestStatusTrackerResetsOnSuccess(t *testing.T) {
	tracker := NewStatusTracker()
	today := domain.Day{Year: 2025, Month: 6, Date: 20}

	require.True(t, tracker.MarkAuthFailure("user-1", today))
	tracker.MarkSuccess("user-1", today)
	require.True(t, tracker.MarkAuthFailure("user-1", today))
}

func TestStatusTrackerSuccessDue(t *testing.T) {
	tracker := NewStatusTracker()
	today := domain.Day{Year: 2025, Month: 6, Date: 20}

	require.True(t, tracker.SuccessDue("user-1", today))
	tracker.MarkSuccess("user-1", today)
	require.False(t, tracker.SuccessDue("user-1", today))
	require.True(t, tracker.SuccessDue("user-1", today.AddDays(1)))
}
