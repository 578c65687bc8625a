package retry

import (
	"math"
	"time"
)

// ExponentialBackoff is a Strategy whose interval grows by Multiplier with
// each attempt, from Initial up to Max, plus a uniformly random jitter in
// [0, Jitter). If Limit is non-zero, the Strategy stops after that many
// attempts; otherwise it retries indefinitely.
type ExponentialBackoff struct {
	// Initial interval of the first attempt.
	Initial time.Duration
	// Max bounds the computed interval (before jitter is added).
	Max time.Duration
	// Multiplier applied to the interval on each successive attempt.
	// Values <= 1 degrade to a constant Initial interval.
	Multiplier float64
	// Jitter is the exclusive upper bound of random delay added per attempt.
	Jitter time.Duration
	// Limit on the number of attempts. Zero means unlimited.
	Limit int

	attempt int
}

// NewExponentialBackoff returns an ExponentialBackoff with default Initial
// and Jitter, a one minute Max, doubling on each attempt, and no attempt limit.
func NewExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Initial:    DefaultInterval,
		Max:        time.Minute,
		Multiplier: 2,
		Jitter:     DefaultJitter,
	}
}

// Reset zeroes the attempt counter.
func (eb *ExponentialBackoff) Reset() { eb.attempt = 0 }

// NextInterval returns the next interval in the exponential progression,
// or Stop once Limit is reached.
func (eb *ExponentialBackoff) NextInterval() time.Duration {
	eb.attempt++
	if eb.Limit != 0 && eb.attempt > eb.Limit {
		return Stop
	}
	var interval = eb.Initial
	if eb.Multiplier > 1 && eb.attempt > 1 {
		var d = float64(eb.Initial) * math.Pow(eb.Multiplier, float64(eb.attempt-1))
		if d > float64(eb.Max) || d < 0 {
			interval = eb.Max
		} else {
			interval = time.Duration(d)
		}
	}
	if interval > eb.Max {
		interval = eb.Max
	}
	return interval + jitter(eb.Jitter)
}

// Progress describes the current attempt, eg "attempt 3 of 10".
func (eb *ExponentialBackoff) Progress() string { return progress(eb.attempt, eb.Limit) }

// Copy returns an independent ExponentialBackoff with the same configuration
// and a zeroed attempt counter.
func (eb *ExponentialBackoff) Copy() Strategy {
	return &ExponentialBackoff{
		Initial:    eb.Initial,
		Max:        eb.Max,
		Multiplier: eb.Multiplier,
		Jitter:     eb.Jitter,
		Limit:      eb.Limit,
	}
}
