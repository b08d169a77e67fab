package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AmosPulse/proof-stamp/internal/tracker"
)

// limiter spaces remote calls a minimum interval apart across all workers.
// GitHub's secondary rate limits trip on bursts rather than volume, so
// pacing the pool as a whole is enough.
type limiter struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func newLimiter(interval time.Duration) *limiter {
	return &limiter{interval: interval}
}

// wait blocks until the caller's slot arrives or ctx ends. Slots are handed
// out in call order under the mutex.
func (l *limiter) wait(ctx context.Context) error {
	if l.interval <= 0 {
		return ctx.Err()
	}

	l.mu.Lock()
	now := time.Now()
	at := l.next
	if at.Before(now) {
		at = now
	}
	l.next = at.Add(l.interval)
	l.mu.Unlock()

	d := time.Until(at)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

const (
	backoffBase = time.Second
	backoffCap  = 30 * time.Second
)

// backoffDelay returns the wait before the next attempt: the base doubles
// per attempt up to the cap. A larger server-advised hint wins, but the cap
// applies to the hint as well.
func backoffDelay(attempt int, hint time.Duration) time.Duration {
	d := backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= backoffCap {
			d = backoffCap
			break
		}
	}
	if hint > d {
		d = hint
	}
	if d > backoffCap {
		d = backoffCap
	}
	return d
}

// retryHint pulls the server-advised wait out of a rate-limit error.
func retryHint(err error) time.Duration {
	var rl *tracker.RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// retryable reports whether another attempt could succeed: rate limiting,
// server-side errors, and transport failures qualify; 4xx responses and
// cancellation do not.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rl *tracker.RateLimitError
	if errors.As(err, &rl) {
		return true
	}
	var api *tracker.APIError
	if errors.As(err, &api) {
		return api.StatusCode >= 500
	}
	return true
}
