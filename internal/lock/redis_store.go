package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "lock:"

// RedisStore keeps lock rows as JSON values under a key prefix. SetNX is
// the insert-if-absent primitive and the key TTL mirrors the row's expiry,
// so Redis usually reclaims abandoned locks before the sweep ever sees
// them. Delete compares the stored lock id server-side to stay atomic.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type redisLockRow struct {
	LockID     string    `json:"lock_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

var deleteIfOwnedScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if not val then
  return 0
end
local row = cjson.decode(val)
if row.lock_id == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *RedisStore) Insert(ctx context.Context, l Lock) error {
	payload, err := json.Marshal(redisLockRow{
		LockID:     l.LockID,
		AcquiredAt: l.AcquiredAt,
		ExpiresAt:  l.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("encode lock row: %w", err)
	}

	ttl := time.Until(l.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	ok, err := s.client.SetNX(ctx, redisKeyPrefix+l.ResourceKey, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("setnx lock: %w", err)
	}
	if !ok {
		return ErrLockExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Lock, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Lock{}, ErrLockNotFound
		}
		return Lock{}, fmt.Errorf("get lock: %w", err)
	}

	var row redisLockRow
	if err := json.Unmarshal([]byte(val), &row); err != nil {
		return Lock{}, fmt.Errorf("decode lock row: %w", err)
	}
	return Lock{ResourceKey: key, LockID: row.LockID, AcquiredAt: row.AcquiredAt, ExpiresAt: row.ExpiresAt}, nil
}

func (s *RedisStore) Delete(ctx context.Context, key, lockID string) (bool, error) {
	n, err := deleteIfOwnedScript.Run(ctx, s.client, []string{redisKeyPrefix + key}, lockID).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("delete lock: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired walks current rows and reclaims any whose recorded expiry
// precedes now. Redis key TTLs make this mostly a no-op; it still catches
// rows whose TTL outlived the recorded expiry, e.g. after clock drift.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) ([]string, error) {
	locks, err := s.List(ctx, "")
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, l := range locks {
		if !l.Expired(now) {
			continue
		}
		deleted, err := s.Delete(ctx, l.ResourceKey, l.LockID)
		if err != nil {
			return keys, err
		}
		if deleted {
			keys = append(keys, l.ResourceKey)
		}
	}
	return keys, nil
}

func (s *RedisStore) List(ctx context.Context, key string) ([]Lock, error) {
	if key != "" {
		l, err := s.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrLockNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return []Lock{l}, nil
	}

	var locks []Lock
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		resourceKey := iter.Val()[len(redisKeyPrefix):]
		l, err := s.Get(ctx, resourceKey)
		if err != nil {
			if errors.Is(err, ErrLockNotFound) {
				continue // expired between scan and read
			}
			return nil, err
		}
		locks = append(locks, l)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan locks: %w", err)
	}
	return locks, nil
}
