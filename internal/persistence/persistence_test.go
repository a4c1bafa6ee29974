package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

// setupTestRedis connects to REDIS_TEST_ADDR (default localhost:6379) and
// skips when no server answers.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available for testing: %v", err)
	}
	client.FlushDB(ctx)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	locker := NewRedisLocker(client, "test:lock:")

	unlock, ok, err := locker.TryLock(ctx, "auto-close", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = locker.TryLock(ctx, "auto-close", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, unlock(ctx))
	unlockAgain, ok, err := locker.TryLock(ctx, "auto-close", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, unlockAgain(ctx))
}

func TestRedisLockerReleaseKeepsForeignLock(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	locker := NewRedisLocker(client, "test:lock:")

	unlock, ok, err := locker.TryLock(ctx, "rollup", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate expiry followed by another instance taking the lock.
	require.NoError(t, client.Set(ctx, "test:lock:rollup", "other-token", time.Minute).Err())
	require.NoError(t, unlock(ctx))

	val, err := client.Get(ctx, "test:lock:rollup").Result()
	require.NoError(t, err)
	assert.Equal(t, "other-token", val)
}

func TestRedisMarker(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	marker := NewRedisMarker(client, "test:mark:")

	first, err := marker.Mark(ctx, "sla-warning:t1:100", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := marker.Mark(ctx, "sla-warning:t1:100", time.Minute)
	require.NoError(t, err)
	assert.False(t, again)

	ttl, err := client.TTL(ctx, "test:mark:sla-warning:t1:100").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestNewRedisWithoutAddress(t *testing.T) {
	r := NewRedis(context.Background(), config.RedisConfig{}, zap.NewNop())
	assert.Nil(t, r)
	assert.Error(t, r.Ping(context.Background()))
	r.Close()
}

func TestNewPostgresWithoutDSN(t *testing.T) {
	pg, err := NewPostgres(context.Background(), config.PostgresConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, pg.Enabled())
	assert.Error(t, pg.Ping(context.Background()))
	pg.Close()
}

func TestMigrationFilesOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_indexes.sql", "0001_init.sql", "README.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("-- noop"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o700))

	files, err := MigrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql", "0002_indexes.sql"}, files)
}

func TestMigrationFilesShipped(t *testing.T) {
	files, err := MigrationFiles(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	assert.Contains(t, files, "0001_init.sql")
}

func TestRunMigrationsWithoutPool(t *testing.T) {
	require.NoError(t, RunMigrations(context.Background(), nil, "missing", zap.NewNop()))
}
