// internal/finder/outcome.go
package finder

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/duckduckgo/shared-web-tests/internal/registry"
)

// Outcome is the pending result of one find invocation. It settles exactly
// once, with either a handle or an error.
type Outcome struct {
	once     sync.Once
	done     chan struct{}
	handle   registry.Handle
	err      error
	attempts atomic.Int32
}

func newOutcome() *Outcome {
	return &Outcome{done: make(chan struct{})}
}

// Done is closed once the outcome has settled.
func (o *Outcome) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the outcome settles or ctx is done. Cancelling ctx only
// stops the wait; the invocation keeps running on the page loop.
func (o *Outcome) Wait(ctx context.Context) (registry.Handle, error) {
	select {
	case <-o.done:
		return o.handle, o.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Result returns the settled value without blocking. ok is false while the
// invocation is still pending.
func (o *Outcome) Result() (h registry.Handle, err error, ok bool) {
	select {
	case <-o.done:
		return o.handle, o.err, true
	default:
		return "", nil, false
	}
}

// Attempts reports how many resolution attempts have run so far.
func (o *Outcome) Attempts() int {
	return int(o.attempts.Load())
}

// settle records the first result and reports whether it won.
func (o *Outcome) settle(h registry.Handle, err error) bool {
	won := false
	o.once.Do(func() {
		o.handle, o.err = h, err
		close(o.done)
		won = true
	})
	return won
}
