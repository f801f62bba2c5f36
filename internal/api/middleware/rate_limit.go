package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/vidsum-dev/vidsum/internal/ratelimit"
)

// RateLimit rejects requests once the calling client's sliding window for
// limiter is exhausted. Client identity mirrors ratelimit.ClientKey: an
// X-Api-Key header if present, otherwise X-Forwarded-For, otherwise
// RemoteAddr.
//
// The error envelope is written directly here rather than through
// api/handler, since handler already depends on this package for
// GetRequestID and importing it back would cycle.
func RateLimit(limiter *ratelimit.SlidingWindow) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ratelimit.ClientKey(r.Header.Get("X-Api-Key"), r.Header.Get("X-Forwarded-For"), r.RemoteAddr)
			if !limiter.Allow(key) {
				writeTooManyRequests(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeTooManyRequests(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(struct {
		Message   string `json:"message"`
		Code      string `json:"code"`
		Status    int    `json:"status"`
		RequestID string `json:"request_id"`
	}{
		Message:   "rate limit exceeded",
		Code:      "TOO_MANY_REQUESTS",
		Status:    http.StatusTooManyRequests,
		RequestID: GetRequestID(r.Context()),
	})
}
