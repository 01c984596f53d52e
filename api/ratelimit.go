package api

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit is a token bucket shared by every caller of the guarded route. The per-owner
// daily ceiling is enforced by the verification guard, not here.
type RateLimit struct {
	PerSecond float64
	Burst     int
}

type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter returns an unlimited limiter when PerSecond is not positive.
func NewRateLimiter(cfg RateLimit) *RateLimiter {
	if cfg.PerSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(cfg.PerSecond), burst)}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}
