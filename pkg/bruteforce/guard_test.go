package bruteforce

import (
	"context"
	"errors"
	"testing"
	"time"

	"share-gateway/pkg/kv"
	"share-gateway/pkg/logging"

	"github.com/stretchr/testify/assert"
)

const (
	testMaxAttempts = 5
	testWindow      = 300 * time.Second
	testLockout     = 600 * time.Second
)

func newTestGuard() (*Guard, *kv.MemStore) {
	store := kv.NewMemStore()
	guard := NewGuard(store, logging.NewLogger(logging.LevelError))
	return guard, store
}

func TestAllowedWithNoHistory(t *testing.T) {
	ctx := context.Background()
	guard, _ := newTestGuard()

	assert.True(t, guard.CheckAllowed(ctx, "code-1", testMaxAttempts, testWindow, testLockout))
}

func TestLockoutAfterThreshold(t *testing.T) {
	ctx := context.Background()
	guard, _ := newTestGuard()

	base := time.Now()
	now := base
	guard.SetClock(func() time.Time { return now })

	for i := 0; i < testMaxAttempts; i++ {
		assert.True(t, guard.CheckAllowed(ctx, "code", testMaxAttempts, testWindow, testLockout), "attempt %d", i)
		assert.NoError(t, guard.RecordFailure(ctx, "code", testWindow))
	}

	// The call that finds the threshold reached is itself rejected and
	// starts the lockout clock.
	assert.False(t, guard.CheckAllowed(ctx, "code", testMaxAttempts, testWindow, testLockout))

	// Still locked just before the lockout elapses, even though the
	// recorded attempts have aged out of the window by then.
	now = base.Add(testLockout - time.Second)
	assert.False(t, guard.CheckAllowed(ctx, "code", testMaxAttempts, testWindow, testLockout))

	now = base.Add(testLockout + time.Second)
	assert.True(t, guard.CheckAllowed(ctx, "code", testMaxAttempts, testWindow, testLockout))
}

func TestAttemptsOutsideWindowDoNotCount(t *testing.T) {
	ctx := context.Background()
	guard, _ := newTestGuard()

	base := time.Now()
	now := base
	guard.SetClock(func() time.Time { return now })

	for i := 0; i < testMaxAttempts-1; i++ {
		assert.NoError(t, guard.RecordFailure(ctx, "code", testWindow))
	}

	// Old failures age out before the next one lands.
	now = base.Add(testWindow + time.Second)
	assert.NoError(t, guard.RecordFailure(ctx, "code", testWindow))
	assert.True(t, guard.CheckAllowed(ctx, "code", testMaxAttempts, testWindow, testLockout))
}

func TestRecordFailureDoesNotLock(t *testing.T) {
	ctx := context.Background()
	guard, _ := newTestGuard()

	// Many more failures than the threshold: lockout is only ever set by
	// CheckAllowed, so nothing is locked until the next check.
	for i := 0; i < testMaxAttempts*3; i++ {
		assert.NoError(t, guard.RecordFailure(ctx, "code", testWindow))
	}

	assert.False(t, guard.CheckAllowed(ctx, "code", testMaxAttempts, testWindow, testLockout))
}

func TestClearResetsState(t *testing.T) {
	ctx := context.Background()
	guard, _ := newTestGuard()

	for i := 0; i < testMaxAttempts; i++ {
		assert.NoError(t, guard.RecordFailure(ctx, "code", testWindow))
	}
	assert.False(t, guard.CheckAllowed(ctx, "code", testMaxAttempts, testWindow, testLockout))

	assert.NoError(t, guard.Clear(ctx, "code"))

	// Behaves identically to a key that never failed.
	for i := 0; i < testMaxAttempts; i++ {
		assert.True(t, guard.CheckAllowed(ctx, "code", testMaxAttempts, testWindow, testLockout), "attempt %d after clear", i)
		assert.NoError(t, guard.RecordFailure(ctx, "code", testWindow))
	}
	assert.False(t, guard.CheckAllowed(ctx, "code", testMaxAttempts, testWindow, testLockout))
}

func TestKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	guard, _ := newTestGuard()

	for i := 0; i < testMaxAttempts; i++ {
		assert.NoError(t, guard.RecordFailure(ctx, "locked-code", testWindow))
	}
	assert.False(t, guard.CheckAllowed(ctx, "locked-code", testMaxAttempts, testWindow, testLockout))
	assert.True(t, guard.CheckAllowed(ctx, "other-code", testMaxAttempts, testWindow, testLockout))
}

type failingStore struct {
	hasState bool
}

func (s *failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.hasState {
		return []byte("{}"), true, nil
	}
	return nil, false, nil
}

func (s *failingStore) Update(ctx context.Context, key string, ttl time.Duration, fn kv.UpdateFunc) error {
	return errors.New("store down")
}

func (s *failingStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("store down")
}

func (s *failingStore) Delete(ctx context.Context, key string) error {
	return errors.New("store down")
}

func TestStorageFailurePolicy(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewLogger(logging.LevelError)

	// No prior state: read checks fail open.
	open := NewGuard(&failingStore{hasState: false}, logger)
	assert.True(t, open.CheckAllowed(ctx, "code", testMaxAttempts, testWindow, testLockout))

	// Existing state that cannot be updated: the lockout-setting path must
	// fail closed so a write failure never bypasses a lock.
	closed := NewGuard(&failingStore{hasState: true}, logger)
	assert.False(t, closed.CheckAllowed(ctx, "code", testMaxAttempts, testWindow, testLockout))
}
