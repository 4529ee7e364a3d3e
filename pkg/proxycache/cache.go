// Package proxycache is a shared TTL cache fronting outbound calls to the
// upstream core API. Only idempotent, unauthenticated GET-style actions are
// eligible; caching an authenticated response would leak one caller's data
// to every other caller of the same action.
package proxycache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"share-gateway/pkg/kv"
)

const namespace = "proxycache"

// Entry is one cached upstream response.
type Entry struct {
	StatusCode int       `json:"status_code"`
	Body       []byte    `json:"body"`
	StoredAt   time.Time `json:"stored_at"`
}

// Fresh reports whether the entry is still usable under the given TTL.
func (e *Entry) Fresh(ttl time.Duration, now time.Time) bool {
	return now.Sub(e.StoredAt) < ttl
}

// Policy decides which logical actions may be cached and for how long.
// TTLs per action are configuration, not a property of the cache itself.
type Policy struct {
	ttls map[string]time.Duration
}

// NewPolicy builds a policy from an action -> TTL allowlist.
func NewPolicy(ttls map[string]time.Duration) Policy {
	cp := make(map[string]time.Duration, len(ttls))
	for k, v := range ttls {
		cp[k] = v
	}
	return Policy{ttls: cp}
}

// Cacheable reports whether a response for the action may be stored.
// Anything carrying forwarded credentials is never cacheable.
func (p Policy) Cacheable(action, method string, requiresAuth bool) bool {
	if requiresAuth || method != "GET" {
		return false
	}
	_, ok := p.ttls[action]
	return ok
}

// TTL returns the freshness budget for an allowlisted action.
func (p Policy) TTL(action string) time.Duration {
	return p.ttls[action]
}

// Key builds a deterministic cache key from the logical action and the full
// query parameter set. url.Values.Encode sorts by key, so parameter order
// never matters; any changed value produces a different key.
func Key(action string, params url.Values) string {
	return action + "?" + params.Encode()
}

type Cache struct {
	store kv.Store
	now   func() time.Time
}

func NewCache(store kv.Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// SetClock overrides the time source for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns the cached entry for (action, params) if one exists and is
// still fresh under ttl.
func (c *Cache) Get(ctx context.Context, action string, params url.Values, ttl time.Duration) (*Entry, bool, error) {
	raw, found, err := c.store.Get(ctx, storageKey(action, params))
	if err != nil {
		return nil, false, fmt.Errorf("proxy cache get: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("proxy cache decode: %w", err)
	}
	if !entry.Fresh(ttl, c.now()) {
		return nil, false, nil
	}
	return &entry, true, nil
}

// Set stores an upstream response. The caller owns the upstream call; the
// cache only keeps its result.
func (c *Cache) Set(ctx context.Context, action string, params url.Values, statusCode int, body []byte, ttl time.Duration) error {
	entry := Entry{
		StatusCode: statusCode,
		Body:       body,
		StoredAt:   c.now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("proxy cache encode: %w", err)
	}
	if err := c.store.Set(ctx, storageKey(action, params), data, ttl); err != nil {
		return fmt.Errorf("proxy cache set: %w", err)
	}
	return nil
}

func storageKey(action string, params url.Values) string {
	return kv.HashKey(namespace, Key(action, params))
}
