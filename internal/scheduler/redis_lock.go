package scheduler

import (
	"context"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/printdesk/internal/logger"
)

// RedisLocker is a Locker backed by a redsync mutex.
type RedisLocker struct {
	rs *redsync.Redsync
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{rs: redsync.New(goredis.NewPool(client))}
}

// Acquire makes a single attempt. A held lock is reported as an error.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	mutex := l.rs.NewMutex(key, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.TryLockContext(ctx); err != nil {
		return nil, err
	}
	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			logger.L().Warn("failed to release job lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
