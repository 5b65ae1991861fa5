package searchcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "meeting-intel/internal/common/errors"
)

// RedisStore shares cached search results between worker replicas. Keys are
// the prefix plus a hash of the query; values are JSON encoded entries.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix defaults to
// "search-cache:".
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "search-cache:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Key returns the redis key used for query.
func (s *RedisStore) Key(query string) string {
	sum := sha256.Sum256([]byte(query))
	return s.prefix + hex.EncodeToString(sum[:])
}

func (s *RedisStore) Get(ctx context.Context, query string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.Key(query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, apperrors.NewCacheStoreFailedError("get", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A corrupt value behaves like a miss and is overwritten on refill.
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (s *RedisStore) Set(ctx context.Context, query string, entry Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return apperrors.NewCacheStoreFailedError("encode", err)
	}
	if err := s.client.Set(ctx, s.Key(query), raw, ttl).Err(); err != nil {
		return apperrors.NewCacheStoreFailedError("set", err)
	}
	return nil
}

// Clear deletes every key under the prefix using SCAN so large caches do not
// block the server.
func (s *RedisStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 200).Result()
		if err != nil {
			return apperrors.NewCacheStoreFailedError("scan", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return apperrors.NewCacheStoreFailedError("delete", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
