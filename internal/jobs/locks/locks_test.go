package locks

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/video-gateway/internal/platform/logger"
)

func exerciseLocker(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()
	key := TranscodeKey(uuid.NewString(), "720p")

	release, ok, err := l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must be refused")

	other, ok, err := l.TryLock(ctx, ProcessKey(uuid.NewString()), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "distinct keys are independent")
	other()

	release()
	release()

	again, ok, err := l.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	again()
}

func TestKeyedMutex(t *testing.T) {
	exerciseLocker(t, NewKeyedMutex())
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis lock tests")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	defer rdb.Close()
	exerciseLocker(t, NewRedisLocker(rdb, logger.Nop()))
}
