// Package ratelimit enforces a minimum interval between outbound sends.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the minimum gap between two accepted sends.
const DefaultInterval = 2 * time.Second

// Limiter is a token bucket of size one refilled once per interval, so a
// send is allowed when at least the interval has passed since the last
// allowed send. Denied sends are not queued and do not move the window.
type Limiter struct {
	interval time.Duration

	mu      sync.Mutex
	limiter *rate.Limiter
	last    time.Time
}

// New creates a limiter with the given interval. A non-positive interval
// falls back to DefaultInterval.
func New(interval time.Duration) *Limiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Limiter{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// TryConsume reports whether a send at now is allowed and, if so, records
// now as the last send. A send exactly one interval after the last is allowed.
func (l *Limiter) TryConsume(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.limiter.AllowN(now, 1) {
		return false
	}
	l.last = now
	return true
}

// Last returns the time of the last accepted send and whether there was one.
func (l *Limiter) Last() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, !l.last.IsZero()
}

// Reset forgets the last send.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiter = rate.NewLimiter(rate.Every(l.interval), 1)
	l.last = time.Time{}
}

// Interval returns the configured minimum gap.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
