// Package ratelimit provides the single shared gate that bounds outbound
// provider calls for an entire run. The quota is account-wide, so every
// worker shares one Limiter regardless of how many symbols are in flight.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces calls so that at most callsPerMinute acquisitions complete
// per minute, with no burst allowance. Waiters are released in FIFO order.
type Limiter struct {
	limiter      *rate.Limiter
	acquisitions int64
}

// New creates a limiter for the given account-wide calls-per-minute quota.
func New(callsPerMinute int) *Limiter {
	if callsPerMinute <= 0 {
		callsPerMinute = 1
	}
	interval := time.Minute / time.Duration(callsPerMinute)
	return &Limiter{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Wait blocks until the next call slot is available or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	atomic.AddInt64(&l.acquisitions, 1)
	return nil
}

// Acquisitions returns how many call slots have been handed out. The
// orchestrator uses this for session API-call accounting.
func (l *Limiter) Acquisitions() int64 {
	return atomic.LoadInt64(&l.acquisitions)
}

// Interval returns the spacing between successive acquisitions.
func (l *Limiter) Interval() time.Duration {
	return time.Duration(float64(time.Second) / float64(l.limiter.Limit()))
}
