package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/scanhunter/internal/api/response"
	"github.com/kiranshivaraju/scanhunter/internal/cache"
)

const (
	defaultRequestsPerMinute = 10
	window                   = 60 * time.Second
)

// RateLimit is a fixed-window limiter backed by Redis counters. Each scope
// (e.g. "scans") has its own budget per caller.
type RateLimit struct {
	cache          cache.Cache
	scope          string
	requestsPerMin int
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache, scope string, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, scope: scope, requestsPerMin: requestsPerMin}
}

// Limit counts the request against the caller's budget for this scope.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := cache.RateLimitKey(rl.scope, callerOrAddr(r))
		count, err := rl.cache.IncrWithExpiry(r.Context(), key, window)
		if err != nil {
			// Fail open: Redis trouble must not block scans.
			slog.Warn("rate limit check failed", "scope", rl.scope, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		resetTime := time.Now().Add(window).Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))

		if count > int64(rl.requestsPerMin) {
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.Error(w, http.StatusTooManyRequests,
				response.CodeRateLimitExceeded, "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
