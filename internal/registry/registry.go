// Package registry issues opaque, stable handles for live page nodes.
//
// A Registry is scoped to one page lifetime. Nodes are keyed by identity
// through weak pointers, so an entry disappears once its node is otherwise
// unreachable instead of pinning detached subtrees for the life of the page.
package registry

import (
	"fmt"
	"runtime"
	"weak"

	"github.com/google/uuid"
)

// Handle is the serializable reference returned to remote callers.
type Handle string

// MintFunc produces a new globally unique handle.
type MintFunc func() (Handle, error)

// NewUUIDHandle mints a random (v4) UUID handle backed by crypto/rand.
func NewUUIDHandle() (Handle, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to mint element handle: %w", err)
	}
	return Handle(id.String()), nil
}

// Registry maps node identity to handle and back. It is not safe for
// concurrent use; callers confine it to the owning page's event loop. The
// post function is how collected entries get removed on that loop.
type Registry[T any] struct {
	byNode   map[weak.Pointer[T]]Handle
	byHandle map[Handle]weak.Pointer[T]
	mint     MintFunc
	post     func(func())
}

// New creates an empty registry. post schedules a function on the owning
// loop; if nil, cleanups are applied directly, which is only safe when the
// registry is never touched concurrently with the garbage collector's cleanup
// goroutine.
func New[T any](mint MintFunc, post func(func())) *Registry[T] {
	if mint == nil {
		mint = NewUUIDHandle
	}
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &Registry[T]{
		byNode:   make(map[weak.Pointer[T]]Handle),
		byHandle: make(map[Handle]weak.Pointer[T]),
		mint:     mint,
		post:     post,
	}
}

// Issue returns the existing handle for node or mints a new one.
func (r *Registry[T]) Issue(node *T) (Handle, error) {
	if node == nil {
		return "", fmt.Errorf("cannot issue a handle for a nil node")
	}

	key := weak.Make(node)
	if h, ok := r.byNode[key]; ok {
		return h, nil
	}

	h, err := r.mint()
	if err != nil {
		return "", err
	}
	if _, taken := r.byHandle[h]; taken {
		return "", fmt.Errorf("handle %q already issued", h)
	}

	r.byNode[key] = h
	r.byHandle[h] = key
	runtime.AddCleanup(node, func(k weak.Pointer[T]) {
		r.post(func() { r.forget(k) })
	}, key)
	return h, nil
}

// Lookup resolves a handle back to its node, if the node is still alive.
func (r *Registry[T]) Lookup(h Handle) (*T, bool) {
	key, ok := r.byHandle[h]
	if !ok {
		return nil, false
	}
	node := key.Value()
	if node == nil {
		return nil, false
	}
	return node, true
}

// Len reports the number of live entries.
func (r *Registry[T]) Len() int {
	return len(r.byNode)
}

func (r *Registry[T]) forget(key weak.Pointer[T]) {
	h, ok := r.byNode[key]
	if !ok {
		return
	}
	delete(r.byNode, key)
	delete(r.byHandle, h)
}
