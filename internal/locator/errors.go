// internal/locator/errors.go
package locator

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks across package boundaries.
var (
	ErrUnsupportedLocator = errors.New("unsupported locator strategy")
	ErrInvalidSelector    = errors.New("invalid selector")
	ErrTimeout            = errors.New("element not found")
)

// UnsupportedLocatorError is returned when the strategy name is not one of the
// known locator strategies. It is deterministic and never retried.
type UnsupportedLocatorError struct {
	Strategy string
}

func (e *UnsupportedLocatorError) Error() string {
	return "Unsupported locator strategy: " + e.Strategy
}

func (e *UnsupportedLocatorError) Is(target error) bool { return target == ErrUnsupportedLocator }

// InvalidSelectorError reports a selector or path expression that cannot be
// compiled, or one that does not select an element.
type InvalidSelectorError struct {
	Selector string
	Err      error
}

func (e *InvalidSelectorError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("Invalid selector: %s", e.Selector)
	}
	return fmt.Sprintf("Invalid selector: %s: %v", e.Selector, e.Err)
}

func (e *InvalidSelectorError) Unwrap() error { return e.Err }

func (e *InvalidSelectorError) Is(target error) bool { return target == ErrInvalidSelector }

// TimeoutError is the terminal failure after the retry budget is exhausted.
// MaxAttempts is the retry budget, not the total number of lookups.
type TimeoutError struct {
	MaxAttempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Element not found after %d attempts", e.MaxAttempts)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }
