// Package ratelimiter throttles high-frequency events such as progress
// callbacks fired once per copied file.
package ratelimiter

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing eventsPerSecond sustained with bursts
// of up to burst events. eventsPerSecond = 0 disables limiting.
func New(eventsPerSecond, burst uint) *RateLimiter {
	if eventsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(eventsPerSecond), int(burst)),
	}
}

// Allow reports whether an event may happen now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Progress wraps a fractional progress callback so that at most
// eventsPerSecond updates reach fn. Updates that change the label and the
// final update (fraction >= 1) are always forwarded.
//
// Returns:
//   - A callback with the same signature as fn
func Progress(fn func(fraction float64, label string), eventsPerSecond uint) func(float64, string) {
	limiter := New(eventsPerSecond, 1)

	var (
		mu        sync.Mutex
		lastLabel string
	)

	return func(fraction float64, label string) {
		allowed := limiter.Allow()

		mu.Lock()
		changed := label != lastLabel
		lastLabel = label
		mu.Unlock()

		if fraction >= 1 || changed || allowed {
			fn(fraction, label)
		}
	}
}
