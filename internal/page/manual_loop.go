// internal/page/manual_loop.go
package page

import (
	"sort"
	"sync"
	"time"
)

// ManualLoop is a Loop driven by an explicit virtual clock. Nothing runs until
// the owner calls RunPending, Advance or RunUntilIdle, which makes timing
// behaviour deterministic in tests. Post and SetTimeout may be called from any
// goroutine; jobs still run on the goroutine driving the loop.
type ManualLoop struct {
	mu        sync.Mutex
	now       time.Duration
	seq       int
	jobs      []func()
	timers    []manualTimer
	scheduled []time.Duration
}

type manualTimer struct {
	due time.Duration
	seq int
	fn  func()
}

var _ Loop = (*ManualLoop)(nil)

// NewManualLoop returns a loop whose clock starts at zero.
func NewManualLoop() *ManualLoop {
	return &ManualLoop{}
}

func (l *ManualLoop) Post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobs = append(l.jobs, fn)
}

func (l *ManualLoop) SetTimeout(fn func(), d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d < 0 {
		d = 0
	}
	l.seq++
	l.timers = append(l.timers, manualTimer{due: l.now + d, seq: l.seq, fn: fn})
	l.scheduled = append(l.scheduled, d)
}

// Now is the virtual time elapsed since the loop was created.
func (l *ManualLoop) Now() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

// Scheduled returns every delay passed to SetTimeout, in call order.
func (l *ManualLoop) Scheduled() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Duration(nil), l.scheduled...)
}

// PendingTimers reports how many timers have not fired yet.
func (l *ManualLoop) PendingTimers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

// RunPending runs queued jobs, including jobs they queue, without moving the
// clock.
func (l *ManualLoop) RunPending() {
	for {
		l.mu.Lock()
		if len(l.jobs) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.jobs[0]
		l.jobs = l.jobs[1:]
		l.mu.Unlock()
		fn()
	}
}

// Advance moves the clock forward by d, firing due timers in order. Queued
// jobs are drained before and after each timer.
func (l *ManualLoop) Advance(d time.Duration) {
	l.mu.Lock()
	target := l.now + d
	l.mu.Unlock()

	l.RunPending()
	for {
		fn, ok := l.popDue(target)
		if !ok {
			break
		}
		fn()
		l.RunPending()
	}

	l.mu.Lock()
	if l.now < target {
		l.now = target
	}
	l.mu.Unlock()
}

// RunUntilIdle fires timers until none remain.
func (l *ManualLoop) RunUntilIdle() {
	l.RunPending()
	for {
		fn, ok := l.popDue(-1)
		if !ok {
			return
		}
		fn()
		l.RunPending()
	}
}

// popDue removes the earliest timer due at or before limit and moves the clock
// to it. A negative limit accepts any timer.
func (l *ManualLoop) popDue(limit time.Duration) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timers) == 0 {
		return nil, false
	}
	sort.SliceStable(l.timers, func(i, j int) bool {
		if l.timers[i].due == l.timers[j].due {
			return l.timers[i].seq < l.timers[j].seq
		}
		return l.timers[i].due < l.timers[j].due
	})
	next := l.timers[0]
	if limit >= 0 && next.due > limit {
		return nil, false
	}
	l.timers = l.timers[1:]
	if next.due > l.now {
		l.now = next.due
	}
	return next.fn, true
}
