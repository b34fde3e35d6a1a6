package audio

import (
	"fmt"
	"sync"
	"time"
)

// Scheduler plays a server-paced stream of buffers back to back on one
// OutputContext and can cut everything off at once when the listener barges in.
type Scheduler struct {
	out OutputContext

	mu        sync.Mutex
	nextStart time.Duration
	active    map[*scheduled]struct{}
}

type scheduled struct {
	src Source
}

// NewScheduler creates a scheduler bound to out. Only one scheduler should
// drive a given stream.
func NewScheduler(out OutputContext) *Scheduler {
	return &Scheduler{
		out:    out,
		active: make(map[*scheduled]struct{}),
	}
}

// Enqueue schedules buf to start when the previous buffer ends, or now if the
// schedule clock has fallen behind the output clock.
func (s *Scheduler) Enqueue(buf *Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.nextStart
	if now := s.out.CurrentTime(); now > start {
		start = now
	}

	entry := &scheduled{}
	s.active[entry] = struct{}{}
	src, err := s.out.Play(buf, start, func() { s.finished(entry) })
	if err != nil {
		delete(s.active, entry)
		return fmt.Errorf("schedule buffer: %w", err)
	}
	entry.src = src
	s.nextStart = start + buf.Duration()
	return nil
}

func (s *Scheduler) finished(entry *scheduled) {
	s.mu.Lock()
	delete(s.active, entry)
	s.mu.Unlock()
}

// InterruptAll stops every playing buffer and resets the schedule clock so
// the next buffer starts immediately.
func (s *Scheduler) InterruptAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for entry := range s.active {
		if entry.src != nil {
			entry.src.Stop()
		}
		delete(s.active, entry)
	}
	s.nextStart = 0
}

// Active returns how many buffers are scheduled or playing.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart returns the earliest time the next buffer may start.
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}
