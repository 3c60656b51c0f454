package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/util"
)

// Loop is the single threaded world loop. All conversation and world state is
// mutated from functions run by the loop. Blocking work runs elsewhere and
// hands its result back with Post.
type Loop struct {
	tickRate time.Duration

	lock    sync.Mutex
	posted  []func()
	tasks   []*Task
	onRound []func(round uint64)

	running atomic.Bool
	wake    chan struct{}
}

func NewLoop(tickRate time.Duration) *Loop {
	if tickRate <= 0 {
		tickRate = 50 * time.Millisecond
	}
	return &Loop{
		tickRate: tickRate,
		wake:     make(chan struct{}, 1),
	}
}

func (l *Loop) TickRate() time.Duration {
	return l.tickRate
}

// Post queues fn to run on the loop. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.lock.Lock()
	l.posted = append(l.posted, fn)
	l.lock.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call runs fn on the loop and waits for it to finish.
// Must not be called from the loop itself.
func (l *Loop) Call(fn func()) {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	<-done
}

// After runs fn once on the loop after delay.
func (l *Loop) After(delay time.Duration, fn func()) *Task {
	t := &Task{
		due: time.Now().Add(delay),
		fn:  fn,
	}
	l.addTask(t)
	return t
}

// Every runs fn on the loop every interval, first run after one interval.
func (l *Loop) Every(interval time.Duration, fn func()) *Task {
	if interval <= 0 {
		interval = l.tickRate
	}
	t := &Task{
		due:      time.Now().Add(interval),
		interval: interval,
		fn:       fn,
	}
	l.addTask(t)
	return t
}

// OnRound registers a hook that runs at the start of every round.
func (l *Loop) OnRound(fn func(round uint64)) {
	l.lock.Lock()
	l.onRound = append(l.onRound, fn)
	l.lock.Unlock()
}

func (l *Loop) addTask(t *Task) {
	l.lock.Lock()
	l.tasks = append(l.tasks, t)
	l.lock.Unlock()
}

// Pending returns the number of scheduled tasks that have not been cancelled or run out.
func (l *Loop) Pending() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	ct := 0
	for _, t := range l.tasks {
		if !t.Cancelled() {
			ct++
		}
	}
	return ct
}

// Run drives the loop until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		mudlog.Warn("Scheduler", "error", "loop is already running")
		return
	}
	defer l.running.Store(false)

	ticker := time.NewTicker(l.tickRate)
	defer ticker.Stop()

	mudlog.Info("Scheduler", "tickRate", l.tickRate.String())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick()
		case <-l.wake:
			l.drainPosted()
		}
	}
}

// Tick runs one round: round hooks, posted functions, then due tasks.
func (l *Loop) Tick() {
	round := util.IncrementRoundCount()

	l.lock.Lock()
	hooks := append([]func(uint64){}, l.onRound...)
	l.lock.Unlock()

	for _, h := range hooks {
		l.safeRun(func() { h(round) })
	}

	l.drainPosted()
	l.runDue(time.Now())
}

func (l *Loop) drainPosted() {
	for {
		l.lock.Lock()
		posted := l.posted
		l.posted = nil
		l.lock.Unlock()

		if len(posted) == 0 {
			return
		}
		for _, fn := range posted {
			l.safeRun(fn)
		}
	}
}

func (l *Loop) runDue(now time.Time) {
	l.lock.Lock()
	due := make([]*Task, 0, 4)
	keep := l.tasks[:0]
	for _, t := range l.tasks {
		if t.Cancelled() {
			continue
		}
		if !now.Before(t.due) {
			due = append(due, t)
			if t.interval > 0 {
				t.due = now.Add(t.interval)
				keep = append(keep, t)
			}
			continue
		}
		keep = append(keep, t)
	}
	// clear the tail so dropped tasks can be collected
	for i := len(keep); i < len(l.tasks); i++ {
		l.tasks[i] = nil
	}
	l.tasks = keep
	l.lock.Unlock()

	for _, t := range due {
		if t.Cancelled() {
			continue
		}
		if t.interval == 0 {
			t.finished.Store(true)
		}
		l.safeRun(t.fn)
	}
}

// Reset cancels every task and drops queued work.
func (l *Loop) Reset() {
	l.lock.Lock()
	for _, t := range l.tasks {
		t.Cancel()
	}
	l.tasks = nil
	l.posted = nil
	l.lock.Unlock()
}

func (l *Loop) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			mudlog.Error("Scheduler", "error", "recovered panic in loop task", "panic", r)
		}
	}()
	fn()
}
