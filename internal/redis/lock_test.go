package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRunLock(t *testing.T, ttl time.Duration) (*RunLock, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	lock := NewRunLock(client, zap.NewNop(), ttl)

	return lock, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestRunLock_AcquireAndRelease(t *testing.T) {
	lock, _, cleanup := setupTestRunLock(t, time.Minute)
	defer cleanup()

	ctx := context.Background()

	release, err := lock.Acquire(ctx, "user-1", "email", "token-a")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// Second acquire while held must be rejected.
	if _, err := lock.Acquire(ctx, "user-1", "email", "token-b"); !errors.Is(err, ErrLockHeld) {
		t.Errorf("expected ErrLockHeld, got %v", err)
	}

	release()

	// After release a new holder can take the lock.
	release2, err := lock.Acquire(ctx, "user-1", "email", "token-c")
	if err != nil {
		t.Errorf("acquire after release failed: %v", err)
	}
	release2()
}

func TestRunLock_ChannelsAreIndependent(t *testing.T) {
	lock, _, cleanup := setupTestRunLock(t, time.Minute)
	defer cleanup()

	ctx := context.Background()

	releaseEmail, err := lock.Acquire(ctx, "user-1", "email", "token-a")
	if err != nil {
		t.Fatalf("email acquire failed: %v", err)
	}
	defer releaseEmail()

	// Holding email must not block whatsapp.
	releaseWA, err := lock.Acquire(ctx, "user-1", "whatsapp", "token-b")
	if err != nil {
		t.Errorf("whatsapp acquire should succeed while email is held: %v", err)
	} else {
		releaseWA()
	}
}

func TestRunLock_ExpiredLeaseDoesNotBlock(t *testing.T) {
	lock, mr, cleanup := setupTestRunLock(t, time.Second)
	defer cleanup()

	ctx := context.Background()

	if _, err := lock.Acquire(ctx, "user-1", "email", "token-a"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	// Crash simulation: the holder never releases, the lease expires.
	mr.FastForward(2 * time.Second)

	release, err := lock.Acquire(ctx, "user-1", "email", "token-b")
	if err != nil {
		t.Fatalf("acquire after expiry should succeed: %v", err)
	}
	release()
}

func TestRunLock_StaleReleaseKeepsSuccessorLock(t *testing.T) {
	lock, mr, cleanup := setupTestRunLock(t, time.Second)
	defer cleanup()

	ctx := context.Background()

	staleRelease, err := lock.Acquire(ctx, "user-1", "email", "token-a")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	mr.FastForward(2 * time.Second)

	if _, err := lock.Acquire(ctx, "user-1", "email", "token-b"); err != nil {
		t.Fatalf("successor acquire failed: %v", err)
	}

	// The stale holder's release compares tokens and must not delete
	// the successor's lease.
	staleRelease()

	if _, err := lock.Acquire(ctx, "user-1", "email", "token-c"); !errors.Is(err, ErrLockHeld) {
		t.Errorf("successor lock should still be held, got %v", err)
	}
}
