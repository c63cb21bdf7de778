// internal/webdriver/errors.go
package webdriver

import (
	"context"
	"errors"
	"net/http"

	"github.com/duckduckgo/shared-web-tests/internal/finder"
	"github.com/duckduckgo/shared-web-tests/internal/locator"
)

// Error codes from the W3C WebDriver error table.
const (
	CodeInvalidArgument   = "invalid argument"
	CodeInvalidSelector   = "invalid selector"
	CodeInvalidSessionID  = "invalid session id"
	CodeNoSuchElement     = "no such element"
	CodeNoSuchWindow      = "no such window"
	CodeSessionNotCreated = "session not created"
	CodeTimeout           = "timeout"
	CodeUnknownCommand    = "unknown command"
	CodeUnknownError      = "unknown error"
)

// Error is a WebDriver error response.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// classify maps a command failure to its wire error.
func classify(err error) *Error {
	var wdErr *Error
	switch {
	case errors.As(err, &wdErr):
		return wdErr
	case errors.Is(err, locator.ErrUnsupportedLocator):
		return &Error{Status: http.StatusBadRequest, Code: CodeInvalidArgument, Message: err.Error()}
	case errors.Is(err, locator.ErrInvalidSelector):
		return &Error{Status: http.StatusBadRequest, Code: CodeInvalidSelector, Message: err.Error()}
	case errors.Is(err, locator.ErrTimeout):
		return &Error{Status: http.StatusNotFound, Code: CodeNoSuchElement, Message: err.Error()}
	case errors.Is(err, finder.ErrDocumentUnloaded):
		return &Error{Status: http.StatusNotFound, Code: CodeNoSuchWindow, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Status: http.StatusInternalServerError, Code: CodeTimeout, Message: err.Error()}
	case errors.Is(err, ErrSessionNotCreated):
		return &Error{Status: http.StatusInternalServerError, Code: CodeSessionNotCreated, Message: "a session is already active"}
	default:
		return &Error{Status: http.StatusInternalServerError, Code: CodeUnknownError, Message: err.Error()}
	}
}
