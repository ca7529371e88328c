// Package clock provides a deterministic clock abstraction for the core.
//
// GUARDRAIL: consent, query-plan, VM, capsule, nonce, and audit logic
// MUST NOT call time.Now() directly. Inject a Clock so that TTL, expiry,
// and revocation-visibility checks stay reproducible in tests.
package clock

import "time"

// Clock provides the current time. Core logic depends on this interface,
// never on time.Now().
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual system time. Use only at cmd/ entrypoints.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns a fixed time. Use for deterministic tests.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed time.
func (c FixedClock) Now() time.Time {
	return c.T
}

// FuncClock wraps a function as a Clock, useful for tests that need an
// advancing or scripted sequence of timestamps.
type FuncClock func() time.Time

// Now calls the wrapped function.
func (f FuncClock) Now() time.Time {
	return f()
}

// New returns a Clock backed by the real system clock.
func New() Clock {
	return RealClock{}
}

// NewFixed returns a Clock that always returns t.
func NewFixed(t time.Time) Clock {
	return FixedClock{T: t.UTC()}
}

// NewFunc returns a Clock backed by a custom function.
func NewFunc(f func() time.Time) Clock {
	return FuncClock(f)
}

var (
	_ Clock = RealClock{}
	_ Clock = FixedClock{}
	_ Clock = FuncClock(nil)
)
