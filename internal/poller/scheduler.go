// Package poller runs the engine's fixed-period polling loops.
//
// A Scheduler owns at most one goroutine per Loop. Channel-scoped loops are
// started with the generation that was current when they were launched; a task
// whose generation has since been advanced must discard its result and return
// ErrStale. Loops never surface errors to the caller: failures are
// logged, counted and kept as the loop's LoopStatus, and the loop tries again
// on its next tick.
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"matchchat/internal/logging"
	"matchchat/internal/metrics"
	"matchchat/internal/types"

	"golang.org/x/sync/errgroup"
)

// Loop names one polling concern.
type Loop string

const (
	LoopDirectory Loop = "directory"
	LoopMessages  Loop = "messages"
	LoopPresence  Loop = "presence"
)

// ErrStale is returned by a task whose result was dropped because the
// generation changed while it was in flight.
var ErrStale = errors.New("stale poll generation")

const stopWait = 5 * time.Second

// Task performs one poll. gen is the generation the loop was started with.
type Task func(ctx context.Context, gen uint64) error

// LoopStatus is the observable sync state of one loop.
type LoopStatus struct {
	Running     bool
	Generation  uint64
	LastSuccess time.Time
	LastError   error
	LastClass   types.ErrorClass
}

type loopHandle struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	reset  chan time.Duration
}

// Scheduler starts and stops generation-tagged polling loops.
type Scheduler struct {
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	group      errgroup.Group
	generation atomic.Uint64
	intervals  map[Loop]time.Duration
	loops      map[Loop]*loopHandle
	status     map[Loop]LoopStatus
	closed     bool
	now        func() time.Time
}

// New creates a scheduler with the given per-loop periods.
func New(parent context.Context, intervals map[Loop]time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	s := &Scheduler{
		ctx:       ctx,
		cancel:    cancel,
		intervals: make(map[Loop]time.Duration, len(intervals)),
		loops:     make(map[Loop]*loopHandle),
		status:    make(map[Loop]LoopStatus),
		now:       time.Now,
	}
	for loop, d := range intervals {
		s.intervals[loop] = d
	}
	return s
}

// Generation returns the current generation.
func (s *Scheduler) Generation() uint64 {
	return s.generation.Load()
}

// IsCurrent reports whether gen is still the active generation.
func (s *Scheduler) IsCurrent(gen uint64) bool {
	return s.generation.Load() == gen
}

// Advance bumps the generation, invalidating every loop started before it.
func (s *Scheduler) Advance() uint64 {
	gen := s.generation.Add(1)
	metrics.PollGeneration.Set(float64(gen))
	return gen
}

// SetInterval changes a loop's period. A running loop restarts its ticker
// right away instead of waiting out the old period.
func (s *Scheduler) SetInterval(loop Loop, d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	prev := s.intervals[loop]
	s.intervals[loop] = d
	if h := s.loops[loop]; h != nil {
		// Only the newest value matters; replace any unread one.
		select {
		case <-h.reset:
		default:
		}
		h.reset <- d
	}
	s.mu.Unlock()
	if prev != d {
		logging.Poll("%s interval %v -> %v", loop, prev, d)
	}
}

// Interval returns a loop's configured period.
func (s *Scheduler) Interval(loop Loop) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intervals[loop]
}

// Start launches loop with generation gen, replacing any running instance.
// The task runs once immediately and then once per interval.
func (s *Scheduler) Start(loop Loop, gen uint64, task Task) bool {
	s.Stop(loop)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if _, running := s.loops[loop]; running {
		// Lost a race with a concurrent Start; the other one wins.
		return false
	}

	ctx, cancel := context.WithCancel(s.ctx)
	h := &loopHandle{gen: gen, cancel: cancel, done: make(chan struct{}), reset: make(chan time.Duration, 1)}
	s.loops[loop] = h

	st := s.status[loop]
	st.Running = true
	st.Generation = gen
	s.status[loop] = st

	s.group.Go(func() error {
		s.run(ctx, loop, h, task)
		return nil
	})
	logging.PollDebug("%s loop started (gen=%d)", loop, gen)
	return true
}

// Stop cancels loop and waits for its goroutine to exit.
func (s *Scheduler) Stop(loop Loop) {
	s.mu.Lock()
	h := s.loops[loop]
	delete(s.loops, loop)
	if st, ok := s.status[loop]; ok {
		st.Running = false
		s.status[loop] = st
	}
	s.mu.Unlock()

	if h == nil {
		return
	}
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(stopWait):
		logging.PollWarn("%s loop (gen=%d) did not stop within %v", loop, h.gen, stopWait)
	}
	logging.PollDebug("%s loop stopped (gen=%d)", loop, h.gen)
}

// Running reports whether loop has a live goroutine.
func (s *Scheduler) Running(loop Loop) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[loop]
	return ok
}

// Status returns a snapshot of every loop's sync state.
func (s *Scheduler) Status() map[Loop]LoopStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Loop]LoopStatus, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

// Close cancels every loop and waits for all of them.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for loop, st := range s.status {
		st.Running = false
		s.status[loop] = st
	}
	s.loops = make(map[Loop]*loopHandle)
	s.mu.Unlock()

	s.cancel()
	return s.group.Wait()
}

func (s *Scheduler) run(ctx context.Context, loop Loop, h *loopHandle, task Task) {
	defer close(h.done)

	interval := s.Interval(loop)
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.tick(ctx, loop, h.gen, task)
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-h.reset:
			if d != interval {
				interval = d
				ticker.Reset(d)
			}
		case <-ticker.C:
			s.tick(ctx, loop, h.gen, task)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, loop Loop, gen uint64, task Task) {
	if ctx.Err() != nil {
		return
	}

	err := task(ctx, gen)

	switch {
	case errors.Is(err, ErrStale), ctx.Err() != nil:
		metrics.PollTotal.WithLabelValues(string(loop), metrics.ResultStale).Inc()
		logging.PollDebug("%s poll discarded (gen=%d)", loop, gen)
		return
	case err == nil:
		metrics.PollTotal.WithLabelValues(string(loop), metrics.ResultOK).Inc()
	default:
		metrics.PollTotal.WithLabelValues(string(loop), metrics.ResultFor(err)).Inc()
		logging.PollWarn("%s poll failed (%s): %v", loop, types.Classify(err), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[loop]
	if st.Generation != gen {
		return
	}
	if err == nil {
		st.LastSuccess = s.now()
		st.LastError = nil
		st.LastClass = types.ClassNone
	} else {
		st.LastError = err
		st.LastClass = types.Classify(err)
	}
	s.status[loop] = st
}
