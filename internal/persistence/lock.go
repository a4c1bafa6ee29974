package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes KEYS[1] only while it still holds the caller's token,
// so an expired lease never frees a lock another instance took over.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker hands out expiring locks so that one instance runs a sweep at a
// time.
type RedisLocker struct {
	client redis.Cmdable
	prefix string
}

// NewRedisLocker builds a locker storing keys under prefix.
func NewRedisLocker(client redis.Cmdable, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix}
}

// TryLock takes key for ttl. ok is false when another holder owns it.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock %s: %w", fullKey, err)
	}
	if !ok {
		return nil, false, nil
	}
	unlock := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{fullKey}, token).Err(); err != nil {
			return fmt.Errorf("unlock %s: %w", fullKey, err)
		}
		return nil
	}
	return unlock, true, nil
}

// RedisMarker remembers keys for a TTL. The SLA warning sweep uses it to
// notify once per ticket and deadline.
type RedisMarker struct {
	client redis.Cmdable
	prefix string
}

// NewRedisMarker builds a marker storing keys under prefix.
func NewRedisMarker(client redis.Cmdable, prefix string) *RedisMarker {
	return &RedisMarker{client: client, prefix: prefix}
}

// Mark reports true when key was not marked yet.
func (m *RedisMarker) Mark(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	ok, err := m.client.SetNX(ctx, m.prefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return ok, nil
}
