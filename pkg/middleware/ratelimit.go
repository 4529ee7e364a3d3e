package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"share-gateway/pkg/ratelimit"
)

// RateLimit applies a per-caller sliding-window limit keyed by the named
// tier. Authenticated callers are keyed by organizer, everyone else by
// client IP. Rejections carry Retry-After alongside the usual quota headers.
func RateLimit(limiter *ratelimit.Limiter, tier string, maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := tier + ":" + callerKey(r)

			allowed, remaining := limiter.Check(r.Context(), key, maxRequests, window)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// callerKey identifies the requester for rate limiting. Organizer identity
// beats the network address when present so a NAT'd office does not share
// one bucket.
func callerKey(r *http.Request) string {
	if id := GetOrganizerIDFromContext(r.Context()); id != "" {
		return id
	}
	return ClientIP(r)
}

// ClientIP extracts the requester's address, trusting X-Forwarded-For from
// the fronting proxy when set.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
