package http

import "golang.org/x/time/rate"

// newRateLimiter returns a per-connection token bucket, or nil when
// limiting is disabled.
func newRateLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func allow(l *rate.Limiter) bool {
	return l == nil || l.Allow()
}
