package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockHeld indicates another cadence run currently holds the
// per-channel lock.
var ErrLockHeld = errors.New("channel run lock already held")

// RunLock serializes cadence runs per channel using a redis SET NX
// lease. Overlapping triggers would otherwise read the same send log
// and daily counts before either writes, producing a double send that
// breaches the daily cap or the minimum spacing.
type RunLock struct {
	client *Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRunLock creates a run lock with the given lease duration. The TTL
// should exceed the run's wall-clock budget so a crashed holder cannot
// block the channel forever while a live one never loses its lease.
func NewRunLock(client *Client, logger *zap.Logger, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RunLock{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

func (l *RunLock) buildKey(userID, channel string) string {
	return fmt.Sprintf("cadence:lock:%s:%s", userID, channel)
}

// Acquire takes the per-channel lock. Returns ErrLockHeld when another
// run is in progress, and a release func otherwise. Release compares
// the stored token so an expired lease cannot delete a successor's lock.
func (l *RunLock) Acquire(ctx context.Context, userID, channel, token string) (func(), error) {
	key := l.buildKey(userID, channel)

	set, err := l.client.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !set {
		l.logger.Debug("channel run lock contended",
			zap.String("channel", channel),
		)
		return nil, ErrLockHeld
	}

	release := func() {
		// Delete only if we still own the lease.
		const script = `
			if redis.call("GET", KEYS[1]) == ARGV[1] then
				return redis.call("DEL", KEYS[1])
			end
			return 0
		`
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := l.client.rdb.Eval(releaseCtx, script, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.logger.Warn("failed to release channel run lock",
				zap.Error(err),
				zap.String("channel", channel),
			)
		}
	}

	return release, nil
}
