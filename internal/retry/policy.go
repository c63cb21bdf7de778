// Package retry defines the bounded exponential backoff budget used when a
// locator lookup misses.
package retry

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseUnit    = 10 * time.Millisecond
	DefaultCap         = 16000 * time.Millisecond
)

// Policy is the retry budget. MaxAttempts counts retries, so a lookup that
// never matches runs MaxAttempts+1 times.
type Policy struct {
	MaxAttempts int
	BaseUnit    time.Duration
	Cap         time.Duration
}

// DefaultPolicy returns the 5 retry, 10ms unit, 16s cap budget.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseUnit:    DefaultBaseUnit,
		Cap:         DefaultCap,
	}
}

// Validate checks the policy for sane values.
func (p Policy) Validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative")
	}
	if p.BaseUnit <= 0 {
		return fmt.Errorf("base_unit must be a positive duration")
	}
	if p.Cap < p.BaseUnit {
		return fmt.Errorf("cap must be at least base_unit")
	}
	return nil
}

// Delay returns the wait before retry number attempt (1-based, counted after
// the increment): min(BaseUnit * 2^attempt, Cap).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseUnit
	for i := 0; i < attempt; i++ {
		if d >= p.Cap/2 {
			return p.Cap
		}
		d *= 2
	}
	return min(d, p.Cap)
}

// NewBackOff builds a fresh schedule for one invocation. It yields
// Delay(1)..Delay(MaxAttempts) and then backoff.Stop.
func (p Policy) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay(1)
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.Cap
	// Zero disables the elapsed time limit; the attempt budget is the only stop condition.
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(p.MaxAttempts))
}
