package stream

import (
	"sync"
	"time"
)

// LoopScheduler runs delayed functions on the goroutine that drains C.
// Timers fire on their own goroutines and only enqueue; nothing scheduled
// runs concurrently with the loop.
type LoopScheduler struct {
	ready chan func()
	stop  chan struct{}

	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	stopped bool
}

// NewLoopScheduler creates a scheduler.
func NewLoopScheduler() *LoopScheduler {
	return &LoopScheduler{
		ready:  make(chan func(), 32),
		stop:   make(chan struct{}),
		timers: make(map[*time.Timer]struct{}),
	}
}

// After enqueues fn on C once d has elapsed.
func (s *LoopScheduler) After(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, t)
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			return
		}
		select {
		case s.ready <- fn:
		case <-s.stop:
		}
	})
	s.timers[t] = struct{}{}
}

// C delivers due functions. The loop must call them.
func (s *LoopScheduler) C() <-chan func() { return s.ready }

// Pending returns the number of functions not yet delivered.
func (s *LoopScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Drain runs every already delivered function without blocking.
func (s *LoopScheduler) Drain() {
	for {
		select {
		case fn := <-s.ready:
			fn()
		default:
			return
		}
	}
}

// Stop cancels every pending timer and rejects new ones. Timers blocked on
// a full C give up. Stop may be called more than once.
func (s *LoopScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stop)
	for t := range s.timers {
		t.Stop()
	}
	clear(s.timers)
}
