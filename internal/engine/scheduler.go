package engine

import (
	"sync"
	"time"
)

// Scheduler runs fire-and-forget follow-ups
type Scheduler interface {
	After(d time.Duration, f func())
	Stop()
}

// TimerScheduler runs follow-ups on in-process timers. Pending timers are
// lost on restart.
type TimerScheduler struct {
	mu      sync.Mutex
	nextID  int
	timers  map[int]*time.Timer
	stopped bool
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[int]*time.Timer)}
}

func (s *TimerScheduler) After(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	s.nextID++
	id := s.nextID
	s.timers[id] = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		f()
	})
}

// Stop cancels every pending timer
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *TimerScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
