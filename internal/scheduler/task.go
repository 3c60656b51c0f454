package scheduler

import (
	"sync/atomic"
	"time"
)

// Task is a handle to scheduled work.
type Task struct {
	due      time.Time
	interval time.Duration
	fn       func()

	cancelled atomic.Bool
	finished  atomic.Bool
}

// Cancel stops the task from running again. Safe to call more than once.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.cancelled.Store(true)
}

func (t *Task) Cancelled() bool {
	if t == nil {
		return true
	}
	return t.cancelled.Load()
}

// Finished is true once a one-shot task has fired.
func (t *Task) Finished() bool {
	if t == nil {
		return false
	}
	return t.finished.Load()
}

func (t *Task) Repeating() bool {
	return t != nil && t.interval > 0
}
