// Package guardtest provides a virtual-time scheduler for driving guard
// timers from tests.
package guardtest

import (
	"sort"
	"sync"
	"time"

	"github.com/campaigndesk/campaigndesk/internal/guard"
)

var _ guard.Scheduler = (*Scheduler)(nil)

// Scheduler runs tasks only when Advance moves its clock past their due time.
type Scheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	tasks map[uint64]*task
	runMu sync.Mutex
}

type task struct {
	id       uint64
	due      time.Time
	interval time.Duration
	fn       func()
}

func NewScheduler(start time.Time) *Scheduler {
	return &Scheduler{now: start, tasks: make(map[uint64]*task)}
}

func (s *Scheduler) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *Scheduler) Every(interval time.Duration, fn func()) guard.Task {
	return s.add(interval, interval, fn)
}

func (s *Scheduler) After(delay time.Duration, fn func()) guard.Task {
	return s.add(delay, 0, fn)
}

func (s *Scheduler) add(delay, interval time.Duration, fn func()) guard.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &task{id: s.seq, due: s.now.Add(delay), interval: interval, fn: fn}
	s.tasks[t.id] = t
	return &handle{s: s, id: t.id}
}

// Pending returns the number of scheduled tasks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Advance moves the clock forward by d, running every task that falls due
// in due-time order. Callbacks run without the scheduler lock held, so they
// may schedule or stop other tasks.
func (s *Scheduler) Advance(d time.Duration) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	target := s.now.Add(d)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.nextDueLocked(target)
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = next.due
		if next.interval > 0 {
			next.due = next.due.Add(next.interval)
		} else {
			delete(s.tasks, next.id)
		}
		fn := next.fn
		s.mu.Unlock()

		fn()
	}
}

func (s *Scheduler) nextDueLocked(target time.Time) *task {
	due := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if !t.due.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].id < due[j].id
		}
		return due[i].due.Before(due[j].due)
	})
	return due[0]
}

type handle struct {
	s  *Scheduler
	id uint64
}

// Stop removes the task. Callbacks run synchronously inside Advance, so
// once Stop returns outside of Advance no run is in progress.
func (h *handle) Stop() {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	delete(h.s.tasks, h.id)
}
