// internal/page/loop.go
package page

import (
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
)

// Loop is a single-threaded cooperative scheduler. Every job posted to it, and
// every timer callback, runs on the same goroutine, one at a time.
type Loop interface {
	// Post queues fn to run on the loop.
	Post(fn func())
	// SetTimeout queues fn to run on the loop once d has elapsed.
	SetTimeout(fn func(), d time.Duration)
}

// EventLoop adapts the goja_nodejs event loop. Only its job queue and timers
// are used; no scripts run on the attached VM.
type EventLoop struct {
	loop *eventloop.EventLoop
}

var _ Loop = (*EventLoop)(nil)

// NewEventLoop creates a stopped loop. Call Start before posting work.
func NewEventLoop() *EventLoop {
	return &EventLoop{loop: eventloop.NewEventLoop()}
}

// Start runs the loop in a background goroutine.
func (e *EventLoop) Start() {
	e.loop.Start()
}

// Stop halts the loop and waits for the current job to finish. Pending timers
// are abandoned.
func (e *EventLoop) Stop() {
	e.loop.Stop()
}

func (e *EventLoop) Post(fn func()) {
	e.loop.RunOnLoop(func(*goja.Runtime) { fn() })
}

func (e *EventLoop) SetTimeout(fn func(), d time.Duration) {
	e.loop.SetTimeout(func(*goja.Runtime) { fn() }, d)
}
