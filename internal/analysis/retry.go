package analysis

import "time"

// Policy decides whether a failed analysis attempt should be retried and how
// long to wait before the next try. It is a pure decision function so the
// orchestrator's loop can be exercised in tests without real delays.
type Policy struct {
	MaxAttempts  int
	TimeoutDelay time.Duration
	FailureDelay time.Duration
}

// DefaultPolicy matches the production ingestion behavior: three attempts
// with images, pausing longer after a timeout than after other failures.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		TimeoutDelay: 20 * time.Second,
		FailureDelay: 10 * time.Second,
	}
}

// Next reports whether another attempt should follow the given failed
// attempt (1-based), and the delay to observe before it.
func (p Policy) Next(attempt int, err error) (bool, time.Duration) {
	if attempt >= p.MaxAttempts {
		return false, 0
	}
	if IsTimeout(err) {
		return true, p.TimeoutDelay
	}
	return true, p.FailureDelay
}
