package util

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTLStore keeps short-lived values keyed by a correlation id.
type TTLStore interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns found=false when the key is missing or expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Take returns the value and deletes it.
	Take(ctx context.Context, key string) (value []byte, found bool, err error)
}

type RedisTTLStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisTTLStore(rdb *redis.Client, prefix string) *RedisTTLStore {
	return &RedisTTLStore{rdb: rdb, prefix: prefix}
}

func (s *RedisTTLStore) key(k string) string {
	return fmt.Sprintf("%s:%s", s.prefix, k)
}

func (s *RedisTTLStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	return s.rdb.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *RedisTTLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *RedisTTLStore) Take(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.rdb.GetDel(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}
