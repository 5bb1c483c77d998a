package guard

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Task is a scheduled function that can be cancelled.
type Task interface {
	// Stop cancels the task. For repeating tasks Stop returns only after an
	// in-flight run has finished, so no run starts or is running afterwards.
	// Stop must not be called from inside the task's own function.
	Stop()
}

// Scheduler runs functions later or periodically. Guards take it as a
// dependency so tests can drive virtual time.
type Scheduler interface {
	Clock
	Every(interval time.Duration, fn func()) Task
	After(delay time.Duration, fn func()) Task
}

// RealScheduler schedules on the wall clock.
type RealScheduler struct{}

func NewRealScheduler() *RealScheduler {
	return &RealScheduler{}
}

func (RealScheduler) Now() time.Time {
	return time.Now()
}

// Every runs fn on its own goroutine every interval until stopped. Runs never
// overlap.
func (RealScheduler) Every(interval time.Duration, fn func()) Task {
	t := &repeatingTask{
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.quit:
				return
			case <-ticker.C:
				// Stop may have raced with the tick.
				select {
				case <-t.quit:
					return
				default:
				}
				fn()
			}
		}
	}()
	return t
}

func (RealScheduler) After(delay time.Duration, fn func()) Task {
	return &oneShotTask{timer: time.AfterFunc(delay, fn)}
}

type repeatingTask struct {
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func (t *repeatingTask) Stop() {
	t.once.Do(func() { close(t.quit) })
	<-t.done
}

type oneShotTask struct {
	timer *time.Timer
}

func (t *oneShotTask) Stop() {
	t.timer.Stop()
}
