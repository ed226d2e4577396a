package tool

import (
	"time"

	"golang.org/x/time/rate"
)

// CallLimiter caps how many tool calls the dispatcher runs per minute.
// It is a token bucket refilled continuously, with a burst of the full
// per-minute allowance.
type CallLimiter struct {
	perMin  int
	limiter *rate.Limiter
	now     func() time.Time // for testing
}

// NewCallLimiter returns a limiter allowing perMinute calls per minute.
// perMinute <= 0 disables limiting and returns nil; a nil *CallLimiter
// allows everything.
func NewCallLimiter(perMinute int) *CallLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &CallLimiter{
		perMin:  perMinute,
		limiter: rate.NewLimiter(rate.Limit(perMinute)/60.0, perMinute),
		now:     time.Now,
	}
}

// Allow reports whether a call may run now and consumes a token if so.
func (l *CallLimiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.AllowN(l.now(), 1)
}

// PerMinute returns the configured allowance, 0 when unlimited.
func (l *CallLimiter) PerMinute() int {
	if l == nil {
		return 0
	}
	return l.perMin
}
