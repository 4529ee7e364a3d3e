// Package bruteforce guards password-protected resources against credential
// stuffing: a per-resource counter of failed attempts inside a trailing
// window, escalating to a timed lockout once a threshold is crossed.
package bruteforce

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"share-gateway/pkg/kv"
	"share-gateway/pkg/logging"
)

const namespace = "bruteforce"

// Record is the persisted per-key lockout state. While LockedUntil is in
// the future every attempt is rejected regardless of the attempt list.
type Record struct {
	Attempts    []time.Time `json:"attempts"`
	LockedUntil *time.Time  `json:"locked_until,omitempty"`
}

type Guard struct {
	store  kv.Store
	logger *logging.Logger
	now    func() time.Time
}

func NewGuard(store kv.Store, logger *logging.Logger) *Guard {
	return &Guard{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source for tests.
func (g *Guard) SetClock(now func() time.Time) {
	g.now = now
}

// CheckAllowed reports whether another credential attempt against key may
// proceed. The call that finds maxAttempts failures already in the window is
// itself rejected and triggers the lockout.
//
// Callers must invoke CheckAllowed before verifying a credential and
// RecordFailure only after verification fails; lockout is evaluated here,
// never in RecordFailure.
//
// Failure policy is asymmetric: if the lockout cannot be persisted the
// attempt is rejected (an attacker must not slip past a threshold because
// the store hiccuped), but a read failure against a key with no prior state
// fails open.
func (g *Guard) CheckAllowed(ctx context.Context, key string, maxAttempts int, window, lockout time.Duration) bool {
	now := g.now()
	storageKey := kv.HashKey(namespace, key)

	allowed := true
	err := g.store.Update(ctx, storageKey, window+lockout, func(old []byte) ([]byte, error) {
		var rec Record
		if old != nil {
			_ = json.Unmarshal(old, &rec)
		}
		var next Record
		allowed, next = evaluate(rec, now, maxAttempts, lockout, pruneCutoff(now, window))
		return json.Marshal(next)
	})
	if err != nil {
		// Only fail open when we can confirm no lockout state exists.
		if _, found, getErr := g.store.Get(ctx, storageKey); getErr == nil && !found {
			g.logger.Warn(ctx, "brute force guard update failed with no prior state, failing open", "error", err)
			return true
		}
		g.logger.Error(ctx, "brute force guard storage failure, failing closed", "error", err)
		return false
	}
	return allowed
}

// RecordFailure appends a failed attempt for key. It never evaluates the
// lockout itself; the threshold is only checked by the next CheckAllowed.
func (g *Guard) RecordFailure(ctx context.Context, key string, window time.Duration) error {
	now := g.now()
	storageKey := kv.HashKey(namespace, key)

	err := g.store.Update(ctx, storageKey, window, func(old []byte) ([]byte, error) {
		var rec Record
		if old != nil {
			_ = json.Unmarshal(old, &rec)
		}
		rec.Attempts = prune(rec.Attempts, pruneCutoff(now, window))
		rec.Attempts = append(rec.Attempts, now)
		return json.Marshal(rec)
	})
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// Clear removes all state for key, typically after a successful credential
// check. A cleared key behaves exactly like one that never failed.
func (g *Guard) Clear(ctx context.Context, key string) error {
	if err := g.store.Delete(ctx, kv.HashKey(namespace, key)); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// evaluate is the lockout state machine transition:
// OPEN -> (threshold reached) -> LOCKED -> (lockout elapses) -> OPEN.
func evaluate(rec Record, now time.Time, maxAttempts int, lockout time.Duration, cutoff time.Time) (bool, Record) {
	if rec.LockedUntil != nil && rec.LockedUntil.After(now) {
		return false, rec
	}
	rec.LockedUntil = nil
	rec.Attempts = prune(rec.Attempts, cutoff)

	if len(rec.Attempts) >= maxAttempts {
		until := now.Add(lockout)
		rec.LockedUntil = &until
		return false, rec
	}
	return true, rec
}

func pruneCutoff(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}

func prune(attempts []time.Time, cutoff time.Time) []time.Time {
	kept := attempts[:0]
	for _, ts := range attempts {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
