package prefs

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces preference keys in a shared Redis.
const DefaultRedisPrefix = "melora:prefs:"

// RedisStore is a Store backed by Redis sets.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store over client. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// LoadSet returns the members of the Redis set.
func (s *RedisStore) LoadSet(ctx context.Context, key string) ([]string, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	members, err := s.client.SMembers(ctx, s.prefix+key).Result()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return members, nil
}

// SaveSet atomically replaces the Redis set.
func (s *RedisStore) SaveSet(ctx context.Context, key string, members []string) error {
	if key == "" {
		return ErrEmptyKey
	}
	redisKey := s.prefix + key
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKey)
		if len(members) > 0 {
			args := make([]interface{}, len(members))
			for i, m := range members {
				args[i] = m
			}
			pipe.SAdd(ctx, redisKey, args...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
