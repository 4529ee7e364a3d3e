package kv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrConflict is returned when an atomic update loses the optimistic-locking
// race more times than the retry budget allows.
var ErrConflict = errors.New("kv: concurrent update conflict")

// UpdateFunc transforms the stored value for a key. old is nil when no record
// exists yet. The returned bytes replace the stored value.
type UpdateFunc func(old []byte) ([]byte, error)

// Store is the persistent key-value store shared by the rate limiter, the
// brute-force guard and the response cache. Update must be an atomic
// read-modify-write with respect to concurrent callers on the same key;
// operations on different keys are independent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// HashKey maps a logical key into a namespaced storage key. Hashing bounds
// key length and keeps caller-supplied input (IPs, codes) out of key names.
func HashKey(namespace, logical string) string {
	sum := sha256.Sum256([]byte(logical))
	return namespace + ":" + hex.EncodeToString(sum[:])
}
