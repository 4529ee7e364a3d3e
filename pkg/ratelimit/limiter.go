// Package ratelimit implements a sliding-window request limiter whose state
// lives in the shared key-value store, so limits hold across processes.
package ratelimit

import (
	"context"
	"encoding/json"
	"time"

	"share-gateway/pkg/kv"
	"share-gateway/pkg/logging"
)

const namespace = "ratelimit"

// Window is the per-key record of request instants inside the trailing window.
type Window struct {
	Timestamps []time.Time `json:"timestamps"`
}

type Limiter struct {
	store  kv.Store
	logger *logging.Logger
	now    func() time.Time
}

func NewLimiter(store kv.Store, logger *logging.Logger) *Limiter {
	return &Limiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}

// Allow reports whether the caller identified by key may proceed, admitting
// at most maxRequests within any trailing window. A rejected request is not
// recorded, so hammering a saturated key does not extend the rejection.
//
// Storage failures fail open: an outage of the limiter's own store must not
// turn into a denial of service against legitimate traffic. The error is
// logged and the request admitted.
func (l *Limiter) Allow(ctx context.Context, key string, maxRequests int, window time.Duration) bool {
	allowed, _ := l.Check(ctx, key, maxRequests, window)
	return allowed
}

// Check is Allow plus the number of admissions left in the window after this
// request, a best-effort hint for X-RateLimit response headers.
func (l *Limiter) Check(ctx context.Context, key string, maxRequests int, window time.Duration) (bool, int) {
	now := l.now()
	storageKey := kv.HashKey(namespace, key)

	allowed := true
	used := 0
	err := l.store.Update(ctx, storageKey, window, func(old []byte) ([]byte, error) {
		var w Window
		if old != nil {
			// A corrupt record counts as empty rather than wedging the key.
			_ = json.Unmarshal(old, &w)
		}
		var next Window
		allowed, next = admit(w, now, maxRequests, window)
		used = len(next.Timestamps)
		return json.Marshal(next)
	})
	if err != nil {
		l.logger.Warn(ctx, "rate limiter storage failure, failing open", "error", err)
		return true, maxRequests
	}
	remaining := maxRequests - used
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining
}

// admit prunes timestamps outside the trailing window and decides whether
// one more request fits. The current instant is appended only on admission.
func admit(w Window, now time.Time, maxRequests int, window time.Duration) (bool, Window) {
	cutoff := now.Add(-window)
	kept := w.Timestamps[:0]
	for _, ts := range w.Timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.Timestamps = kept

	if len(w.Timestamps) >= maxRequests {
		return false, w
	}
	w.Timestamps = append(w.Timestamps, now)
	return true, w
}
