package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the limiter deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestLimiter(maxPerWindow int) (*SessionLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := NewSessionLimiter(maxPerWindow, time.Minute)
	l.now = clock.now
	return l, clock
}

func TestAllow_WithinCapacity(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(3)
	for i := range 3 {
		allowed, retry := l.Allow("s1")
		assert.True(t, allowed, "request %d should be allowed", i+1)
		assert.Zero(t, retry)
	}
}

func TestAllow_DeniesOverCapacity(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(2)
	l.Allow("s1")
	clock.advance(10 * time.Second)
	l.Allow("s1")
	clock.advance(10 * time.Second)

	allowed, retry := l.Allow("s1")
	require.False(t, allowed)
	// Oldest hit is 20s old: 40s remain in its window, plus the
	// round-up second.
	assert.Equal(t, 41, retry)
}

func TestAllow_RetryAfterNeverBelowOne(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(1)
	l.Allow("s1")
	clock.advance(time.Minute) // exactly at the window edge, not yet evicted

	allowed, retry := l.Allow("s1")
	require.False(t, allowed)
	assert.Equal(t, 1, retry)
}

func TestAllow_WindowSlides(t *testing.T) {
	t.Parallel()

	l, clock := newTestLimiter(2)
	l.Allow("s1")
	l.Allow("s1")

	allowed, _ := l.Allow("s1")
	require.False(t, allowed)

	clock.advance(time.Minute + time.Second)
	allowed, retry := l.Allow("s1")
	assert.True(t, allowed)
	assert.Zero(t, retry)
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	l, _ := newTestLimiter(1)
	l.Allow("s1")

	allowed, _ := l.Allow("s2")
	assert.True(t, allowed)

	allowed, _ = l.Allow("s1")
	assert.False(t, allowed)
}
