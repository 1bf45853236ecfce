// Package ratelimit provides the process-wide request gate for outbound scraping.
// Requests issued faster than the configured interval are delayed, not rejected.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum interval between consecutive requests across
// every goroutine sharing it. The check and the reservation happen atomically
// inside rate.Limiter, so two callers can never both slip under the interval.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration

	mu   sync.Mutex
	last time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a limiter admitting one request per interval with no burst.
// A non-positive interval disables limiting.
func New(interval time.Duration) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Limiter{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Wait blocks until the next request slot is available, ctx is canceled, or
// the limiter is stopped. A canceled wait gives its reservation back.
func (l *Limiter) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := l.limiter.Wait(ctx); err != nil {
		select {
		case <-l.done:
			return ErrStopped
		default:
		}
		return err
	}

	l.mu.Lock()
	l.last = time.Now()
	l.mu.Unlock()
	return nil
}

// Interval returns the configured minimum gap between requests.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// LastRequest returns when the most recent request was admitted.
func (l *Limiter) LastRequest() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Stop releases every goroutine blocked in Wait. Later calls to Wait fail with ErrStopped.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
	})
}

type stoppedError struct{}

func (stoppedError) Error() string { return "ratelimit: limiter stopped" }

// ErrStopped is returned by Wait after Stop has been called.
var ErrStopped error = stoppedError{}
