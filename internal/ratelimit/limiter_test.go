package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(burst, refill float64) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(burst, refill)
	l.now = clock.now

	return l, clock
}

func TestBurstThenDeny(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(5, 1)

	for i := 0; i < 5; i++ {
		assert.True(t, l.TryAcquire("alice"), "request %d within burst", i+1)
	}

	assert.False(t, l.TryAcquire("alice"), "6th request must be denied")
}

func TestRefillGrantsExactlyEarnedTokens(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(5, 1)

	for i := 0; i < 5; i++ {
		assert.True(t, l.TryAcquire("alice"))
	}

	assert.False(t, l.TryAcquire("alice"))

	// One second at 1 token/s earns exactly one more request.
	clock.advance(time.Second)

	assert.True(t, l.TryAcquire("alice"))
	assert.False(t, l.TryAcquire("alice"))
}

func TestRefillClampedToBurst(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(3, 10)

	for i := 0; i < 3; i++ {
		assert.True(t, l.TryAcquire("alice"))
	}

	// A long idle period must not accumulate beyond the burst.
	clock.advance(time.Hour)

	for i := 0; i < 3; i++ {
		assert.True(t, l.TryAcquire("alice"), "request %d after idle", i+1)
	}

	assert.False(t, l.TryAcquire("alice"))
}

func TestKeysAreIndependent(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(2, 1)

	assert.True(t, l.TryAcquire("alice"))
	assert.True(t, l.TryAcquire("alice"))
	assert.False(t, l.TryAcquire("alice"))

	// A different caller has a full bucket of its own.
	assert.True(t, l.TryAcquire("bob"))
	assert.True(t, l.TryAcquire("bob"))
	assert.False(t, l.TryAcquire("bob"))
}

func TestDeniedCallDoesNotConsumeTokens(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(1, 1)

	assert.True(t, l.TryAcquire("alice"))

	// Hammering while empty must not push the bucket negative.
	for i := 0; i < 10; i++ {
		assert.False(t, l.TryAcquire("alice"))
	}

	clock.advance(time.Second)
	assert.True(t, l.TryAcquire("alice"))
}

func TestTryAcquireN(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(5, 1)

	assert.True(t, l.TryAcquireN("alice", 3))
	assert.False(t, l.TryAcquireN("alice", 3), "only 2 tokens left")
	assert.True(t, l.TryAcquireN("alice", 2))
	assert.False(t, l.TryAcquire("alice"))
}
