// Package ratelimit implements per-caller token-bucket admission control for
// the economy API surface.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter keeps one lazily-refilled token bucket per caller key. Buckets
// live in memory only and reset on restart; rate limiting is an
// abuse-prevention concern, not a correctness one.
type Limiter struct {
	mu      sync.Mutex
	burst   float64
	refill  float64 // tokens per second
	buckets map[string]*bucket

	now func() time.Time
}

// New returns a Limiter with the given burst capacity and refill rate in
// tokens per second.
func New(burst, refillPerSec float64) *Limiter {
	return &Limiter{
		burst:   burst,
		refill:  refillPerSec,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// TryAcquire attempts to take one token from key's bucket. It never blocks.
func (l *Limiter) TryAcquire(key string) bool {
	return l.TryAcquireN(key, 1)
}

// TryAcquireN attempts to take cost tokens from key's bucket. It refills the
// bucket based on elapsed time (clamped to the burst capacity), then
// subtracts cost if enough tokens remain. Denied calls leave the bucket's
// token count untouched.
func (l *Limiter) TryAcquireN(key string, cost float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * l.refill
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
		b.last = now
	}

	if b.tokens < cost {
		return false
	}

	b.tokens -= cost

	return true
}
