package cache

import (
	"context"
	"errors"
	"path"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Store.Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is the key-value backend behind the Coordinator. Loss of the
// backend degrades performance, never correctness.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
}

// ============================================
// Redis-backed store
// ============================================

type redisStore struct {
	client *redis.Client
}

// NewRedisStore wraps a connected Redis client as a Store.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *redisStore) DeletePattern(ctx context.Context, pattern string) error {
	keys, err := s.client.Keys(ctx, pattern).Result()
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		return s.client.Del(ctx, keys...).Err()
	}
	return nil
}

// ============================================
// In-process store (used when Redis is not configured)
// ============================================

type memoryStore struct {
	cache *ttlcache.Cache[string, []byte]
}

// NewMemoryStore returns a Store backed by an in-process TTL cache.
// Touch-on-hit is disabled: reads must not extend an entry's lifetime,
// or a hot stale entry would never expire.
func NewMemoryStore() Store {
	c := ttlcache.New[string, []byte](
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go c.Start()
	return &memoryStore{cache: c}
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	item := s.cache.Get(key)
	if item == nil {
		return nil, ErrMiss
	}
	return item.Value(), nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.cache.Set(key, value, ttl)
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		s.cache.Delete(k)
	}
	return nil
}

func (s *memoryStore) DeletePattern(ctx context.Context, pattern string) error {
	for _, k := range s.cache.Keys() {
		if ok, _ := path.Match(pattern, k); ok {
			s.cache.Delete(k)
		}
	}
	return nil
}
