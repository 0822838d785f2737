package termq

import (
	"log/slog"
	"time"
)

// Default timer bounds. Both are overridable per queue.
const (
	// DefaultTimeout is the bound after which, absent a response, the
	// waiting generator is resumed with the Timeout sentinel.
	DefaultTimeout = 500 * time.Millisecond

	// DefaultStableDelay is the quiet period used by ResumeDebounced to
	// coalesce bursts of subprocess output into a single resume.
	DefaultStableDelay = 100 * time.Millisecond
)

// Option configures a Queue using the functional options pattern.
type Option func(*Queue)

// WithLogger sets the logger for operation tracking.
// If not set, logging is disabled (silent operation).
func WithLogger(log *slog.Logger) Option {
	return func(q *Queue) {
		if log != nil {
			q.log = log
		}
	}
}

// WithTimeout overrides the response timeout bound.
func WithTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithStableDelay overrides the debounce quiet period.
func WithStableDelay(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.stableDelay = d
		}
	}
}
