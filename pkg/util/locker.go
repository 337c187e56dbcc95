package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker is a best-effort distributed lock keyed by scope and id.
type Locker struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewLocker(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func lockKey(scope string, id int64) string {
	return fmt.Sprintf("lock:%s:%d", scope, id)
}

// Acquire returns true when the caller now holds the lock.
// When Redis is unavailable the lock is granted so processing is never blocked.
func (l *Locker) Acquire(ctx context.Context, scope string, id int64) bool {
	key := lockKey(scope, id)

	ok, err := l.rdb.SetNX(ctx, key, 1, l.ttl).Result()
	if err != nil {
		l.logger.Warn("Redis lock check failed, allowing processing",
			zap.String("scope", scope),
			zap.Int64("id", id),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		l.logger.Info("Skipped locked item",
			zap.String("scope", scope),
			zap.Int64("id", id),
			zap.String("lock_key", key),
		)
	}

	return ok
}

func (l *Locker) Release(ctx context.Context, scope string, id int64) {
	if err := l.rdb.Del(ctx, lockKey(scope, id)).Err(); err != nil {
		l.logger.Warn("Failed to release lock",
			zap.String("scope", scope),
			zap.Int64("id", id),
			zap.Error(err),
		)
	}
}
