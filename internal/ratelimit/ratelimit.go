// Package ratelimit implements the per-session sliding-window request
// gate. Each session key keeps a queue of request timestamps; a request
// is allowed while fewer than the configured maximum fall inside the
// trailing window.
//
// Keys are never evicted from the outer map. For the traffic profile of
// a personal site this is an acceptable slow leak; a higher-traffic
// deployment would need periodic sweeping of cold keys.
package ratelimit

import (
	"sync"
	"time"
)

// SessionLimiter is a sliding-window rate limiter keyed by an opaque
// session identifier. Safe for concurrent use.
type SessionLimiter struct {
	maxPerWindow int
	window       time.Duration

	mu   sync.Mutex
	hits map[string][]time.Time

	// now is replaceable in tests
	now func() time.Time
}

// NewSessionLimiter creates a limiter allowing maxPerWindow requests
// per key within the trailing window.
func NewSessionLimiter(maxPerWindow int, window time.Duration) *SessionLimiter {
	return &SessionLimiter{
		maxPerWindow: maxPerWindow,
		window:       window,
		hits:         make(map[string][]time.Time),
		now:          time.Now,
	}
}

// Allow records a request for key if it is within budget. When denied,
// retryAfter is the number of whole seconds until the oldest recorded
// request leaves the window, never less than 1.
func (l *SessionLimiter) Allow(key string) (allowed bool, retryAfter int) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	queue := l.hits[key]
	for len(queue) > 0 && now.Sub(queue[0]) > l.window {
		queue = queue[1:]
	}

	if len(queue) >= l.maxPerWindow {
		l.hits[key] = queue
		retry := int((l.window-now.Sub(queue[0]))/time.Second) + 1
		if retry < 1 {
			retry = 1
		}
		return false, retry
	}

	l.hits[key] = append(queue, now)
	return true, 0
}
