package ratelimit

import (
	"golang.org/x/time/rate"
)

// NewTokenBucket returns a limiter refilling tokensPerSecond with the given burst.
// A non-positive rate disables limiting.
func NewTokenBucket(tokensPerSecond float64, burst int) *rate.Limiter {
	if tokensPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(tokensPerSecond), burst)
}
