package retry

import (
	"fmt"
	"math/rand"
	"time"
)

// LinearBackoff is a Strategy which waits a fixed Interval between attempts,
// plus a uniformly random jitter in [0, Jitter). If Limit is non-zero, the
// Strategy stops after that many attempts; otherwise it retries indefinitely.
type LinearBackoff struct {
	// Interval between attempts.
	Interval time.Duration
	// Jitter is the exclusive upper bound of random delay added to Interval.
	Jitter time.Duration
	// Limit on the number of attempts. Zero means unlimited.
	Limit int

	attempt int
}

// NewLinearBackoff returns a LinearBackoff with default Interval and Jitter,
// and no attempt limit.
func NewLinearBackoff() *LinearBackoff {
	return &LinearBackoff{
		Interval: DefaultInterval,
		Jitter:   DefaultJitter,
	}
}

// Reset zeroes the attempt counter.
func (lb *LinearBackoff) Reset() { lb.attempt = 0 }

// NextInterval returns Interval plus jitter, or Stop once Limit is reached.
func (lb *LinearBackoff) NextInterval() time.Duration {
	lb.attempt++
	if lb.Limit != 0 && lb.attempt > lb.Limit {
		return Stop
	}
	return lb.Interval + jitter(lb.Jitter)
}

// Progress describes the current attempt, eg "attempt 3 of 10".
func (lb *LinearBackoff) Progress() string { return progress(lb.attempt, lb.Limit) }

// Copy returns an independent LinearBackoff with the same configuration and
// a zeroed attempt counter.
func (lb *LinearBackoff) Copy() Strategy {
	return &LinearBackoff{
		Interval: lb.Interval,
		Jitter:   lb.Jitter,
		Limit:    lb.Limit,
	}
}

func jitter(bound time.Duration) time.Duration {
	if bound <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(bound)))
}

func progress(attempt, limit int) string {
	if limit != 0 {
		return fmt.Sprintf("attempt %d of %d", attempt, limit)
	}
	return fmt.Sprintf("attempt %d", attempt)
}
