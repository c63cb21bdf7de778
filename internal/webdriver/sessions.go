// internal/webdriver/sessions.go
package webdriver

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrSessionNotCreated is returned when no further session can be started.
var ErrSessionNotCreated = errors.New("session not created")

// Session is one automated browsing context.
type Session interface {
	Navigate(ctx context.Context, url string) error
	FindElement(ctx context.Context, using, value string) (string, error)
}

// Sessions owns the sessions exposed over the wire.
type Sessions interface {
	Create(ctx context.Context) (string, error)
	Get(id string) (Session, bool)
	Delete(id string) bool
}

// SingleSession exposes one pre-built Session. At most one client may hold it
// at a time; deleting it makes it available again under a new id.
type SingleSession struct {
	mu      sync.Mutex
	session Session
	id      string
}

var _ Sessions = (*SingleSession)(nil)

// NewSingleSession wraps s.
func NewSingleSession(s Session) *SingleSession {
	return &SingleSession{session: s}
}

func (ss *SingleSession) Create(ctx context.Context) (string, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.id != "" {
		return "", ErrSessionNotCreated
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	ss.id = id.String()
	return ss.id, nil
}

func (ss *SingleSession) Get(id string) (Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if id == "" || id != ss.id {
		return nil, false
	}
	return ss.session, true
}

func (ss *SingleSession) Delete(id string) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if id == "" || id != ss.id {
		return false
	}
	ss.id = ""
	return true
}
