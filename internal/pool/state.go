package pool

import "time"

// backoffDisableThreshold is the consecutive-error count at which the
// backoff gate starts refusing acquires.
const backoffDisableThreshold = 3

// hardLockoutThreshold is the consecutive-error count at which the backoff
// schedule is overridden by a flat hour-long lockout regardless of the
// exponential formula.
const hardLockoutThreshold = 10

// hardLockoutDelay is the fixed delay applied once hardLockoutThreshold is
// reached.
const hardLockoutDelay = time.Hour

// maxBackoffDelay caps the exponential backoff delay.
const maxBackoffDelay = 5 * time.Minute

// connState tracks health for one pool key.
type connState struct {
	consecutiveErrors int
	lastErrorAt       time.Time
	everSucceeded     bool
}

func newConnState() *connState {
	return &connState{}
}

func (s *connState) recordSuccess(now time.Time) {
	s.consecutiveErrors = 0
	s.everSucceeded = true
	_ = now
}

func (s *connState) recordError(now time.Time) {
	s.consecutiveErrors++
	s.lastErrorAt = now
}

// backoffDelay computes the delay gating the next retry: 2^min(n,8) seconds
// capped at 5 minutes, overridden by a flat 1-hour lockout once n reaches
// the hard lockout threshold.
func (s *connState) backoffDelay() time.Duration {
	if s.consecutiveErrors >= hardLockoutThreshold {
		return hardLockoutDelay
	}
	n := s.consecutiveErrors
	if n > 8 {
		n = 8
	}
	delay := time.Duration(1<<uint(n)) * time.Second
	if delay > maxBackoffDelay {
		delay = maxBackoffDelay
	}
	return delay
}

// shouldSkip reports whether the backoff gate should refuse an acquire
// attempt outright, without any network I/O.
func (s *connState) shouldSkip(now time.Time) bool {
	if s.consecutiveErrors < backoffDisableThreshold {
		return false
	}
	if s.lastErrorAt.IsZero() {
		return false
	}
	return now.Sub(s.lastErrorAt) < s.backoffDelay()
}
