package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/video-gateway/internal/platform/logger"
)

// releaseScript deletes the lock only if it still carries our token, so an
// expired holder cannot free a lock someone else has since taken.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker coordinates across gateway replicas with SET NX PX.
type RedisLocker struct {
	rdb    goredis.Cmdable
	log    *logger.Logger
	prefix string
}

func NewRedisLocker(rdb goredis.Cmdable, log *logger.Logger) *RedisLocker {
	return &RedisLocker{rdb: rdb, log: log.With("component", "RedisLocker"), prefix: "video-gateway:lock:"}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	token := uuid.NewString()
	fullKey := l.prefix + key
	ok, err := l.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return func() {}, false, fmt.Errorf("redis lock %s: %w", key, err)
	}
	if !ok {
		return func() {}, false, nil
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		// The caller's context may already be done at release time.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{fullKey}, token).Err(); err != nil && err != goredis.Nil {
			l.log.Warn("Lock release failed", "key", key, "error", err)
		}
	}, true, nil
}
