// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scheduler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisLockPrefix = "floodgate:lock:"
	redisMetaPrefix = "floodgate:lockmeta:"
)

// Expiry is native in Redis: the lock key carries a PX TTL and simply
// vanishes when the lease dies, so acquisition is SET NX. Ownership
// checks on mutation go through Lua to stay atomic.
var (
	acquireScript = redis.NewScript(`
local ok = redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2])
if ok then
  redis.call('HINCRBY', KEYS[2], 'generation', 1)
  redis.call('HSET', KEYS[2], 'acquired_at_ms', ARGV[3])
  return 1
end
return 0
`)

	refreshScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

	lastRunScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('HSET', KEYS[2], 'last_run_at_ms', ARGV[2])
  return 1
end
return 0
`)
)

// RedisLockStore implements LockStore on Redis for deployments where
// replicas do not share a filesystem.
type RedisLockStore struct {
	client *redis.Client
}

func NewRedisLockStore(client *redis.Client) *RedisLockStore {
	return &RedisLockStore{client: client}
}

func lockKey(name string) string { return redisLockPrefix + name }
func metaKey(name string) string { return redisMetaPrefix + name }

func (s *RedisLockStore) TryAcquire(ctx context.Context, name, owner string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return false, nil
	}
	now := time.Now().UnixMilli()
	res, err := acquireScript.Run(ctx, s.client,
		[]string{lockKey(name), metaKey(name)},
		owner, ttl.Milliseconds(), now,
	).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisLockStore) Verify(ctx context.Context, name, owner string) (bool, error) {
	val, err := s.client.Get(ctx, lockKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == owner, nil
}

func (s *RedisLockStore) Refresh(ctx context.Context, name, owner string, newExpiry time.Time) (bool, error) {
	ttl := time.Until(newExpiry)
	if ttl <= 0 {
		return false, nil
	}
	res, err := refreshScript.Run(ctx, s.client,
		[]string{lockKey(name)}, owner, ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisLockStore) Release(ctx context.Context, name, owner string) (bool, error) {
	res, err := releaseScript.Run(ctx, s.client,
		[]string{lockKey(name)}, owner,
	).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *RedisLockStore) UpdateLastRun(ctx context.Context, name, owner string) error {
	_, err := lastRunScript.Run(ctx, s.client,
		[]string{lockKey(name), metaKey(name)},
		owner, time.Now().UnixMilli(),
	).Int64()
	return err
}

// SweepExpired prunes meta hashes of tasks whose lock key is gone and
// whose last activity lies beyond grace. The lock keys themselves need
// no sweeping.
func (s *RedisLockStore) SweepExpired(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := time.Now().Add(-grace).UnixMilli()
	var deleted int64

	err := s.scanKeys(ctx, redisMetaPrefix+"*", func(key string) error {
		name := strings.TrimPrefix(key, redisMetaPrefix)

		exists, err := s.client.Exists(ctx, lockKey(name)).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return nil
		}

		meta, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if metaFieldMs(meta, "acquired_at_ms") >= cutoff || metaFieldMs(meta, "last_run_at_ms") >= cutoff {
			return nil
		}

		n, err := s.client.Del(ctx, key).Result()
		if err != nil {
			return err
		}
		deleted += n
		return nil
	})
	return deleted, err
}

func (s *RedisLockStore) ReleaseAllByOwner(ctx context.Context, owner string) (int64, error) {
	var released int64

	err := s.scanKeys(ctx, redisLockPrefix+"*", func(key string) error {
		res, err := releaseScript.Run(ctx, s.client, []string{key}, owner).Int64()
		if err != nil {
			return err
		}
		released += res
		return nil
	})
	return released, err
}

func (s *RedisLockStore) Snapshot(ctx context.Context) ([]LockInfo, error) {
	var infos []LockInfo

	err := s.scanKeys(ctx, redisMetaPrefix+"*", func(key string) error {
		name := strings.TrimPrefix(key, redisMetaPrefix)
		info := LockInfo{TaskName: name}

		meta, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if gen, ok := meta["generation"]; ok {
			info.Generation, _ = strconv.ParseInt(gen, 10, 64)
		}
		info.LastRunAt = ms2t(metaFieldMs(meta, "last_run_at_ms"))

		owner, err := s.client.Get(ctx, lockKey(name)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			info.OwnerID = owner
			ttl, err := s.client.PTTL(ctx, lockKey(name)).Result()
			if err != nil {
				return err
			}
			if ttl > 0 {
				info.ExpiresAt = time.Now().Add(ttl)
			}
		}

		infos = append(infos, info)
		return nil
	})
	return infos, err
}

func (s *RedisLockStore) scanKeys(ctx context.Context, pattern string, fn func(key string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			if err := fn(key); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func metaFieldMs(meta map[string]string, field string) int64 {
	val, ok := meta[field]
	if !ok {
		return 0
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return ms
}
