package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"matchchat/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newScheduler(t *testing.T, d time.Duration) *Scheduler {
	t.Helper()
	s := New(context.Background(), map[Loop]time.Duration{
		LoopDirectory: d,
		LoopMessages:  d,
		LoopPresence:  d,
	})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStartRunsImmediately(t *testing.T) {
	s := newScheduler(t, time.Hour)
	ran := make(chan uint64, 1)

	require.True(t, s.Start(LoopMessages, 3, func(ctx context.Context, gen uint64) error {
		ran <- gen
		return nil
	}))

	select {
	case gen := <-ran:
		assert.Equal(t, uint64(3), gen)
	case <-time.After(time.Second):
		t.Fatal("first poll did not run immediately")
	}
}

func TestLoopTicks(t *testing.T) {
	s := newScheduler(t, 5*time.Millisecond)
	var n atomic.Int32
	s.Start(LoopDirectory, 0, func(ctx context.Context, gen uint64) error {
		n.Add(1)
		return nil
	})

	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
	st := s.Status()[LoopDirectory]
	assert.True(t, st.Running)
	assert.False(t, st.LastSuccess.IsZero())
	assert.NoError(t, st.LastError)
}

func TestStopIsSynchronous(t *testing.T) {
	s := newScheduler(t, time.Millisecond)
	var n atomic.Int32
	s.Start(LoopPresence, 1, func(ctx context.Context, gen uint64) error {
		n.Add(1)
		return nil
	})
	require.Eventually(t, func() bool { return n.Load() >= 2 }, time.Second, time.Millisecond)

	s.Stop(LoopPresence)
	after := n.Load()
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, after, n.Load())
	assert.False(t, s.Running(LoopPresence))
	assert.False(t, s.Status()[LoopPresence].Running)
}

func TestStartReplacesRunningLoop(t *testing.T) {
	s := newScheduler(t, time.Millisecond)
	var oldRuns atomic.Int32

	s.Start(LoopMessages, 1, func(ctx context.Context, gen uint64) error {
		oldRuns.Add(1)
		return nil
	})
	require.Eventually(t, func() bool { return oldRuns.Load() > 0 }, time.Second, time.Millisecond)

	newRan := make(chan struct{}, 1)
	s.Start(LoopMessages, 2, func(ctx context.Context, gen uint64) error {
		select {
		case newRan <- struct{}{}:
		default:
		}
		return nil
	})
	frozen := oldRuns.Load()
	<-newRan
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, frozen, oldRuns.Load())
	assert.Equal(t, uint64(2), s.Status()[LoopMessages].Generation)
}

func TestFailureIsRecordedAndLoopContinues(t *testing.T) {
	s := newScheduler(t, time.Millisecond)
	var n atomic.Int32
	s.Start(LoopMessages, 1, func(ctx context.Context, gen uint64) error {
		if n.Add(1) < 3 {
			return &types.ServerRejectedError{Op: "list messages", Status: 503}
		}
		return nil
	})

	require.Eventually(t, func() bool {
		return s.Status()[LoopMessages].LastClass == types.ClassTransient
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		st := s.Status()[LoopMessages]
		return st.LastError == nil && !st.LastSuccess.IsZero()
	}, time.Second, time.Millisecond)
}

func TestStaleResultDoesNotTouchStatus(t *testing.T) {
	s := newScheduler(t, time.Millisecond)
	var n atomic.Int32
	s.Start(LoopPresence, 1, func(ctx context.Context, gen uint64) error {
		n.Add(1)
		return ErrStale
	})
	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)

	st := s.Status()[LoopPresence]
	assert.True(t, st.LastSuccess.IsZero())
	assert.NoError(t, st.LastError)
}

func TestSetIntervalAppliesToRunningLoop(t *testing.T) {
	s := newScheduler(t, 20*time.Millisecond)
	var n atomic.Int32
	s.Start(LoopDirectory, 0, func(ctx context.Context, gen uint64) error {
		n.Add(1)
		return nil
	})

	s.SetInterval(LoopDirectory, time.Millisecond)
	assert.Equal(t, time.Millisecond, s.Interval(LoopDirectory))
	assert.Eventually(t, func() bool { return n.Load() >= 10 }, 2*time.Second, time.Millisecond)

	s.SetInterval(LoopDirectory, 0)
	assert.Equal(t, time.Millisecond, s.Interval(LoopDirectory))
}

func TestSetIntervalShortensLongPeriodImmediately(t *testing.T) {
	s := newScheduler(t, time.Hour)
	ran := make(chan struct{}, 8)
	s.Start(LoopDirectory, 0, func(ctx context.Context, gen uint64) error {
		ran <- struct{}{}
		return nil
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("first poll did not run immediately")
	}

	s.SetInterval(LoopDirectory, 10*time.Millisecond)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("new interval waited for the old hour-long period")
	}
}

func TestSetIntervalBeforeStartIsUsed(t *testing.T) {
	s := newScheduler(t, time.Hour)
	s.SetInterval(LoopMessages, 5*time.Millisecond)

	var n atomic.Int32
	s.Start(LoopMessages, 0, func(ctx context.Context, gen uint64) error {
		n.Add(1)
		return nil
	})
	assert.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)
}

func TestGeneration(t *testing.T) {
	s := newScheduler(t, time.Second)
	g0 := s.Generation()
	g1 := s.Advance()

	assert.Equal(t, g0+1, g1)
	assert.True(t, s.IsCurrent(g1))
	assert.False(t, s.IsCurrent(g0))
}

func TestCloseStopsEverything(t *testing.T) {
	s := New(context.Background(), map[Loop]time.Duration{LoopDirectory: time.Millisecond, LoopMessages: time.Millisecond})
	block := func(ctx context.Context, gen uint64) error {
		<-ctx.Done()
		return ctx.Err()
	}
	s.Start(LoopDirectory, 0, block)
	s.Start(LoopMessages, 1, block)

	require.NoError(t, s.Close())
	assert.False(t, s.Running(LoopDirectory))
	assert.False(t, s.Start(LoopMessages, 2, block))
	require.NoError(t, s.Close())
}

func TestCanceledTaskIsNotAFailure(t *testing.T) {
	s := newScheduler(t, time.Hour)
	started := make(chan struct{})
	s.Start(LoopMessages, 1, func(ctx context.Context, gen uint64) error {
		close(started)
		<-ctx.Done()
		return errors.New("request aborted")
	})
	<-started
	s.Stop(LoopMessages)

	assert.NoError(t, s.Status()[LoopMessages].LastError)
}
