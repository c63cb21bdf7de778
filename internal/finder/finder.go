// Package finder runs the element locator protocol on a page: wait for the
// document to finish loading, resolve the locator, retry misses on a bounded
// exponential schedule and hand back a stable handle for the matched node.
package finder

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/duckduckgo/shared-web-tests/internal/locator"
	"github.com/duckduckgo/shared-web-tests/internal/page"
	"github.com/duckduckgo/shared-web-tests/internal/registry"
	"github.com/duckduckgo/shared-web-tests/internal/retry"
)

// ErrDocumentUnloaded settles invocations still pending when the page
// navigates away from the document they were started on.
var ErrDocumentUnloaded = errors.New("document unloaded while waiting for result")

// State is the lifecycle position of one invocation.
type State int

const (
	StateWaitingForLoad State = iota
	StateResolving
	StateBackoff
	StateResolved
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateWaitingForLoad:
		return "waiting_for_load"
	case StateResolving:
		return "resolving"
	case StateBackoff:
		return "backoff"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) terminal() bool {
	return s == StateResolved || s == StateFailed
}

// Finder starts find invocations. It is stateless apart from its
// configuration and can serve any number of pages.
type Finder struct {
	resolver *locator.Resolver
	policy   retry.Policy
	logger   *zap.Logger
}

// New creates a Finder using the given retry budget.
func New(policy retry.Policy, logger *zap.Logger) *Finder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finder{
		resolver: locator.NewResolver(),
		policy:   policy,
		logger:   logger.Named("finder"),
	}
}

// Find starts an invocation on p's loop and returns immediately. Find itself
// may be called from any goroutine.
func (f *Finder) Find(p *page.Page, req locator.Request) *Outcome {
	inv := &invocation{
		finder:  f,
		page:    p,
		req:     req,
		out:     newOutcome(),
		backoff: f.policy.NewBackOff(),
		logger:  f.logger.With(zap.String("using", req.Using), zap.String("value", req.Value)),
	}
	p.Post(inv.start)
	return inv.out
}

// invocation is confined to the page loop.
type invocation struct {
	finder   *Finder
	page     *page.Page
	req      locator.Request
	out      *Outcome
	lifetime *page.Lifetime
	unhook   func()
	backoff  backoff.BackOff
	state    State
	logger   *zap.Logger
}

func (inv *invocation) start() {
	inv.lifetime = inv.page.Lifetime()
	inv.unhook = inv.lifetime.OnUnload(func() { inv.fail(ErrDocumentUnloaded) })
	if inv.state.terminal() {
		return
	}

	if inv.page.ReadyState() != page.Complete {
		inv.state = StateWaitingForLoad
		inv.logger.Debug("Document still loading, waiting for load event.")
		inv.page.OnLoad(inv.resolve)
		return
	}
	inv.resolve()
}

func (inv *invocation) resolve() {
	if inv.state.terminal() {
		return
	}
	inv.state = StateResolving
	attempt := inv.out.attempts.Add(1)

	node, err := inv.finder.resolver.Resolve(inv.page.Document(), inv.req)
	if err != nil {
		inv.fail(err)
		return
	}
	if node != nil {
		inv.issue(node, int(attempt))
		return
	}

	next := inv.backoff.NextBackOff()
	if next == backoff.Stop {
		inv.fail(&locator.TimeoutError{MaxAttempts: inv.finder.policy.MaxAttempts})
		return
	}
	inv.state = StateBackoff
	inv.logger.Debug("No match, scheduling retry.", zap.Int32("attempt", attempt), zap.Duration("delay", next))
	inv.page.SetTimeout(inv.resolve, next)
}

func (inv *invocation) issue(node *html.Node, attempt int) {
	h, err := inv.lifetime.Registry().Issue(node)
	if err != nil {
		inv.fail(err)
		return
	}
	inv.state = StateResolved
	inv.release()
	if inv.out.settle(h, nil) {
		inv.logger.Debug("Element resolved.",
			zap.Int("attempts", attempt),
			zap.String("node", locator.UniqueXPath(node)),
			zap.String("handle", string(h)))
	}
}

func (inv *invocation) fail(err error) {
	if inv.state.terminal() {
		return
	}
	inv.state = StateFailed
	inv.release()
	if inv.out.settle("", err) {
		inv.logger.Debug("Find failed.", zap.Int("attempts", inv.out.Attempts()), zap.Error(err))
	}
}

// release drops the unload hook so a settled invocation is not pinned by the
// lifetime.
func (inv *invocation) release() {
	if inv.unhook != nil {
		inv.unhook()
		inv.unhook = nil
	}
}

// PageFinder binds a Finder to one page and exposes the blocking call used by
// remote callers.
type PageFinder struct {
	finder *Finder
	page   *page.Page
}

// NewPageFinder returns a PageFinder for p.
func NewPageFinder(f *Finder, p *page.Page) *PageFinder {
	return &PageFinder{finder: f, page: p}
}

// FindElement resolves {using, value} on the page and returns the handle.
func (pf *PageFinder) FindElement(ctx context.Context, using, value string) (string, error) {
	h, err := pf.finder.Find(pf.page, locator.Request{Using: using, Value: value}).Wait(ctx)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Element resolves a previously issued handle against the current document.
// It must be called on the page loop.
func (pf *PageFinder) Element(h registry.Handle) (*html.Node, bool) {
	lt := pf.page.Lifetime()
	if !lt.HasRegistry() {
		return nil, false
	}
	return lt.Registry().Lookup(h)
}
