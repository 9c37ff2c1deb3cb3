package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy is returned by NewPolicy for non-positive inputs. Only the
// strict construction path errors; counter hydration is lenient.
var ErrInvalidPolicy = errors.New("ratelimit: invalid policy")

// Policy allows at most Occurrence events per Period sliding window.
// Policies are immutable values; a single counter can be evaluated against
// several policies sharing the same key.
type Policy struct {
	Occurrence int
	Period     time.Duration
}

// NewPolicy validates and builds a policy.
func NewPolicy(occurrence int, period time.Duration) (Policy, error) {
	if occurrence <= 0 {
		return Policy{}, fmt.Errorf("%w: occurrence must be positive, got %d", ErrInvalidPolicy, occurrence)
	}

	if period <= 0 {
		return Policy{}, fmt.Errorf("%w: period must be positive, got %s", ErrInvalidPolicy, period)
	}

	return Policy{Occurrence: occurrence, Period: period}, nil
}

func (p Policy) windowMillis() int64 {
	return p.Period.Milliseconds()
}
