package resilience

import (
	"context"
	"sync"
	"time"
)

// LimiterOpts configures the token bucket rate limiter.
type LimiterOpts struct {
	// Rate is the number of tokens added per second.
	Rate float64
	// Burst is the maximum number of tokens (bucket capacity).
	Burst int
}

// Limiter is a token bucket. Allow is the non-blocking check, Wait blocks
// until a token is available or the context ends.
type Limiter struct {
	mu    sync.Mutex
	rate  float64
	cap   float64
	avail float64
	stamp time.Time
	now   func() time.Time
}

// NewLimiter creates a token bucket rate limiter. The bucket starts full.
func NewLimiter(opts LimiterOpts) *Limiter {
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &Limiter{
		rate:  opts.Rate,
		cap:   float64(opts.Burst),
		avail: float64(opts.Burst),
		now:   time.Now,
	}
}

// take credits elapsed time, then either consumes a token or reports how
// long until one accrues.
func (l *Limiter) take() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.now()
	if !l.stamp.IsZero() {
		l.avail += t.Sub(l.stamp).Seconds() * l.rate
		if l.avail > l.cap {
			l.avail = l.cap
		}
	}
	l.stamp = t

	if l.avail >= 1 {
		l.avail--
		return true, 0
	}
	wait := time.Duration((1 - l.avail) / l.rate * float64(time.Second))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return false, wait
}

// Allow reports whether a token is available, consuming it if so.
func (l *Limiter) Allow() bool {
	ok, _ := l.take()
	return ok
}

// Wait blocks until a token is available or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		ok, wait := l.take()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
