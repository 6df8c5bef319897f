package storage

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "easierfocus:"

type RedisBackend struct {
	client *goredis.Client
}

func NewRedisBackend(client *goredis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func NewRedisBackendFromURL(rawURL string) (*RedisBackend, error) {
	if rawURL == "" {
		rawURL = "redis://localhost:6379/0"
	}
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisBackend(goredis.NewClient(opts)), nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if b.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	value, err := b.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	if b.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := b.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if b.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := b.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}
