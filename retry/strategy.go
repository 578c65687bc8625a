// Package retry implements backoff policies which govern if and when a failed
// streaming connection should be re-attempted. A Strategy instance is owned by
// exactly one caller: a configured Strategy is typically built once and then
// handed out as a template, with each user taking an independent Copy.
package retry

import (
	"time"
)

// Stop is a sentinel interval returned by Strategy.NextInterval to signal that
// the attempt budget is exhausted and no further retries should occur. It is
// distinct from a zero interval, which means "retry immediately".
const Stop time.Duration = -1

// Default configuration of strategies built with their zero-argument constructors.
const (
	DefaultInterval = 3 * time.Second
	DefaultJitter   = time.Second
)

// Strategy computes successive retry intervals and tracks attempt progress.
// Implementations are stateful and not safe for concurrent use.
type Strategy interface {
	// Reset returns the Strategy to its initial state, zeroing attempt counters.
	Reset()
	// NextInterval increments the attempt counter and returns the interval to
	// wait before the next attempt, or Stop if the attempt budget is exhausted.
	// A zero return is valid and means the next attempt should begin at once.
	NextInterval() time.Duration
	// Progress describes attempt progress for logging, eg "attempt 3 of 10".
	// It is purely informational and never drives control flow.
	Progress() string
	// Copy returns an independent Strategy with the same static configuration
	// and attempt counters at their initial state.
	Copy() Strategy
}
