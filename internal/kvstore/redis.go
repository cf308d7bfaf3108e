package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the production Store backed by a single Redis (or
// DragonflyDB) connection.
type RedisStore struct {
	client *redis.Client
}

// RedisOptions configures the underlying connection.
type RedisOptions struct {
	Host     string
	Port     int
	DB       int
	Password string
}

// NewRedisStore opens a connection pool against the given Redis instance.
func NewRedisStore(opts RedisOptions) *RedisStore {
	addr := opts.Host
	if opts.Port != 0 {
		addr = fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       opts.DB,
		Password: opts.Password,
	})
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) LPush(ctx context.Context, list string, value []byte) error {
	return s.client.LPush(ctx, list, value).Err()
}

func (s *RedisStore) RPop(ctx context.Context, list string) ([]byte, error) {
	val, err := s.client.RPop(ctx, list).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *RedisStore) LLen(ctx context.Context, list string) (int64, error) {
	return s.client.LLen(ctx, list).Result()
}

func (s *RedisStore) LRange(ctx context.Context, list string, start, stop int64) ([][]byte, error) {
	vals, err := s.client.LRange(ctx, list, start, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// NewRedisStoreFromClient wraps an already-configured client, for tests
// that point at an in-process miniredis instance.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}
