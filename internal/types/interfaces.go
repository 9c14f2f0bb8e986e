package types

import "time"

// Clock abstracts time for testability. The worker captures a single "now"
// per invocation and threads it through the whole pipeline, so an injected
// fixed clock makes every run deterministic.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock implements Clock with a constant instant. Used in tests.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.At }

// DispatchResult is the outcome of one provider call. OK reflects the HTTP
// status class (2xx), Body carries the provider's parsed response (JSON value
// or raw text) or an error detail, and is recorded verbatim on the send log
// for diagnosis.
type DispatchResult struct {
	OK         bool
	StatusCode int
	Body       any
}
