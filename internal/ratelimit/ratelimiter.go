package ratelimit

import (
	"sync"
	"time"
)

// Limiter is used to enforce per-key rate limits.
type Limiter interface {
	Allow(credentialID string, limit int) bool
}

// NoopLimiter allows all requests (useful for tests).
type NoopLimiter struct{}

func NewNoopLimiter() *NoopLimiter {
	return &NoopLimiter{}
}

func (l *NoopLimiter) Allow(credentialID string, limit int) bool {
	return true
}

// SlidingWindow implements an exact sliding-window limiter over the trailing
// 60 seconds, kept entirely in process memory. Each credential owns an
// independent window, so a fixed-window boundary burst cannot double the
// admitted rate the way a bucket counter would. In a multi-process
// deployment each process enforces only its own slice of the limit.
type SlidingWindow struct {
	window time.Duration
	now    func() time.Time

	// mu guards the map only; each entry carries its own lock so traffic on
	// one credential never serializes another's.
	mu      sync.Mutex
	entries map[string]*windowEntry
}

type windowEntry struct {
	mu     sync.Mutex
	stamps []time.Time
}

// NewSlidingWindow creates a limiter with a 60-second trailing window.
func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{
		window:  time.Minute,
		now:     time.Now,
		entries: make(map[string]*windowEntry),
	}
}

// Allow reports whether a request for the credential is admitted, and records
// its timestamp when it is. Timestamps older than the window are evicted
// lazily on each call; rejected requests are not recorded. A limit of zero or
// less means unlimited.
func (l *SlidingWindow) Allow(credentialID string, limit int) bool {
	if limit <= 0 {
		return true
	}

	e := l.entry(credentialID)
	now := l.now()
	cutoff := now.Add(-l.window)

	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.stamps[:0]
	for _, ts := range e.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.stamps = kept

	if len(e.stamps) >= limit {
		return false
	}
	e.stamps = append(e.stamps, now)
	return true
}

// InWindow returns the number of requests currently inside the credential's
// trailing window.
func (l *SlidingWindow) InWindow(credentialID string) int {
	e := l.entry(credentialID)
	cutoff := l.now().Add(-l.window)

	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	for _, ts := range e.stamps {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}

func (l *SlidingWindow) entry(credentialID string) *windowEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[credentialID]
	if !ok {
		e = &windowEntry{}
		l.entries[credentialID] = e
	}
	return e
}
