// Package page hosts an in-process HTML document on a single-threaded event
// loop, modelling the parts of a browser page the element locator depends on:
// the document, its load state, load completion listeners, timers and the
// per-document lifetime that scopes handle issuance.
//
// Except for Post, every Page and Lifetime method must be called from the
// page's loop.
package page

import (
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/duckduckgo/shared-web-tests/internal/registry"
)

// ReadyState mirrors document.readyState.
type ReadyState string

const (
	Loading     ReadyState = "loading"
	Interactive ReadyState = "interactive"
	Complete    ReadyState = "complete"
)

// Page is one browsing context showing one document at a time.
type Page struct {
	loop     Loop
	logger   *zap.Logger
	doc      *html.Node
	state    ReadyState
	lifetime *Lifetime
	nextID   uint64
}

// New creates a page showing an empty, fully loaded document.
func New(loop Loop, logger *zap.Logger) *Page {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Page{
		loop:   loop,
		logger: logger.Named("page"),
	}
	doc, _ := html.Parse(strings.NewReader("<html><head></head><body></body></html>"))
	p.replace(doc, Complete)
	return p
}

// Post queues fn on the page's loop. It is safe to call from any goroutine.
func (p *Page) Post(fn func()) {
	p.loop.Post(fn)
}

// SetTimeout runs fn on the loop after d, unless the document is replaced
// first. Timers never outlive the lifetime that created them.
func (p *Page) SetTimeout(fn func(), d time.Duration) {
	lt := p.lifetime
	p.loop.SetTimeout(func() {
		if !lt.Alive() {
			return
		}
		fn()
	}, d)
}

// Navigate replaces the document with markup read from r. The previous
// lifetime ends: its registry, load listeners and timers are discarded. The
// new document starts in the Loading state.
func (p *Page) Navigate(r io.Reader) error {
	doc, err := html.Parse(r)
	if err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	p.replace(doc, Loading)
	p.logger.Debug("Navigated to new document.", zap.Uint64("lifetime", p.lifetime.id))
	return nil
}

// Document returns the live document node.
func (p *Page) Document() *html.Node {
	return p.doc
}

// ReadyState returns the current load state.
func (p *Page) ReadyState() ReadyState {
	return p.state
}

// Lifetime returns the lifetime of the current document.
func (p *Page) Lifetime() *Lifetime {
	return p.lifetime
}

// SetReadyState moves the document through its load states. Entering
// Complete fires the load listeners, each exactly once.
func (p *Page) SetReadyState(state ReadyState) {
	if p.state == state {
		return
	}
	p.state = state
	if state != Complete {
		return
	}

	listeners := p.lifetime.loadListeners
	p.lifetime.loadListeners = nil
	p.logger.Debug("Document load complete.", zap.Int("listeners", len(listeners)))
	for _, fn := range listeners {
		fn()
	}
}

// FinishLoading is shorthand for SetReadyState(Complete).
func (p *Page) FinishLoading() {
	p.SetReadyState(Complete)
}

// OnLoad subscribes fn to load completion of the current document. If the
// document is already complete, fn is queued on the loop right away.
func (p *Page) OnLoad(fn func()) {
	if p.state == Complete {
		p.loop.Post(fn)
		return
	}
	p.lifetime.loadListeners = append(p.lifetime.loadListeners, fn)
}

func (p *Page) replace(doc *html.Node, state ReadyState) {
	if p.lifetime != nil {
		p.lifetime.end()
	}
	p.nextID++
	p.doc = doc
	p.state = state
	p.lifetime = &Lifetime{id: p.nextID, post: p.loop.Post}
}

// Lifetime is the span during which one document is shown. It owns the handle
// registry, which is created on first use and dropped with the lifetime.
type Lifetime struct {
	id            uint64
	ended         bool
	post          func(func())
	registry      *registry.Registry[html.Node]
	loadListeners []func()
	unloadHooks   []*unloadHook
}

type unloadHook struct {
	fn func()
}

// ID identifies the lifetime within its page.
func (lt *Lifetime) ID() uint64 {
	return lt.id
}

// Alive reports whether the document is still shown.
func (lt *Lifetime) Alive() bool {
	return !lt.ended
}

// Registry returns the lifetime's handle registry, creating it on first call.
func (lt *Lifetime) Registry() *registry.Registry[html.Node] {
	if lt.registry == nil {
		lt.registry = registry.New[html.Node](registry.NewUUIDHandle, lt.post)
	}
	return lt.registry
}

// HasRegistry reports whether a registry has been created yet.
func (lt *Lifetime) HasRegistry() bool {
	return lt.registry != nil
}

// OnUnload registers fn to run when the lifetime ends and returns a func that
// unregisters it. On an ended lifetime fn runs immediately.
func (lt *Lifetime) OnUnload(fn func()) (remove func()) {
	if lt.ended {
		fn()
		return func() {}
	}
	h := &unloadHook{fn: fn}
	lt.unloadHooks = append(lt.unloadHooks, h)
	return func() {
		for i, registered := range lt.unloadHooks {
			if registered == h {
				lt.unloadHooks = append(lt.unloadHooks[:i], lt.unloadHooks[i+1:]...)
				return
			}
		}
	}
}

// UnloadHooks reports how many unload hooks are registered.
func (lt *Lifetime) UnloadHooks() int {
	return len(lt.unloadHooks)
}

func (lt *Lifetime) end() {
	if lt.ended {
		return
	}
	lt.ended = true
	lt.registry = nil
	lt.loadListeners = nil
	hooks := lt.unloadHooks
	lt.unloadHooks = nil
	for _, h := range hooks {
		h.fn()
	}
}
