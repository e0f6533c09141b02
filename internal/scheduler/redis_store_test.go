// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisLockStore) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisLockStore(client)
}

func TestRedisLockStore_TryAcquireFresh(t *testing.T) {
	_, store := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := store.TryAcquire(ctx, "upload-sweep", "owner-a", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	held, err := store.Verify(ctx, "upload-sweep", "owner-a")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestRedisLockStore_TryAcquireRejectsLiveLease(t *testing.T) {
	_, store := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := store.TryAcquire(ctx, "upload-sweep", "owner-a", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.TryAcquire(ctx, "upload-sweep", "owner-b", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLockStore_TakeoverAfterExpiry(t *testing.T) {
	mr, store := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := store.TryAcquire(ctx, "upload-sweep", "owner-a", time.Now().Add(100*time.Millisecond))
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(200 * time.Millisecond)

	held, err := store.Verify(ctx, "upload-sweep", "owner-a")
	require.NoError(t, err)
	assert.False(t, held, "expired lease must not verify")

	ok, err = store.TryAcquire(ctx, "upload-sweep", "owner-b", time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	// Generation advances across acquisitions.
	infos, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, int64(2), infos[0].Generation)
	assert.Equal(t, "owner-b", infos[0].OwnerID)
}

func TestRedisLockStore_RefreshOwnerOnly(t *testing.T) {
	_, store := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := store.TryAcquire(ctx, "upload-sweep", "owner-a", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Refresh(ctx, "upload-sweep", "owner-b", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Refresh(ctx, "upload-sweep", "owner-a", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockStore_ReleaseOwnerOnly(t *testing.T) {
	_, store := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := store.TryAcquire(ctx, "upload-sweep", "owner-a", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	released, err := store.Release(ctx, "upload-sweep", "owner-b")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = store.Release(ctx, "upload-sweep", "owner-a")
	require.NoError(t, err)
	assert.True(t, released)

	// Idempotent second release.
	released, err = store.Release(ctx, "upload-sweep", "owner-a")
	require.NoError(t, err)
	assert.False(t, released)
}

func TestRedisLockStore_UpdateLastRun(t *testing.T) {
	_, store := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := store.TryAcquire(ctx, "upload-sweep", "owner-a", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	// Non-owner stamp is a silent no-op.
	require.NoError(t, store.UpdateLastRun(ctx, "upload-sweep", "owner-b"))
	require.NoError(t, store.UpdateLastRun(ctx, "upload-sweep", "owner-a"))

	infos, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.False(t, infos[0].LastRunAt.IsZero())
}

func TestRedisLockStore_SweepExpired(t *testing.T) {
	mr, store := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := store.TryAcquire(ctx, "abandoned", "owner-old", time.Now().Add(100*time.Millisecond))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.TryAcquire(ctx, "upload-sweep", "owner-a", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(200 * time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	// Zero grace: everything without a live lock key is reaped.
	n, err := store.SweepExpired(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	infos, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "upload-sweep", infos[0].TaskName)
}

func TestRedisLockStore_ReleaseAllByOwner(t *testing.T) {
	_, store := newTestRedisStore(t)
	ctx := context.Background()

	for _, name := range []string{"task-1", "task-2"} {
		ok, err := store.TryAcquire(ctx, name, "owner-a", time.Now().Add(time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := store.TryAcquire(ctx, "task-other", "owner-b", time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	n, err := store.ReleaseAllByOwner(ctx, "owner-a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	held, err := store.Verify(ctx, "task-1", "owner-a")
	require.NoError(t, err)
	assert.False(t, held)

	held, err = store.Verify(ctx, "task-other", "owner-b")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestRedisLockStore_TryAcquirePastExpiry(t *testing.T) {
	_, store := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := store.TryAcquire(ctx, "upload-sweep", "owner-a", time.Now().Add(-time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "an expiry in the past can never produce a live lease")
}
