package repository

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisRepo stores each key as a plain Redis string without expiry.
type RedisRepo struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisRepo(rdb *redis.Client, logger *zap.Logger) *RedisRepo {
	return &RedisRepo{rdb: rdb, logger: logger}
}

func (r *RedisRepo) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		r.logger.Error("Failed to read redis key", zap.String("key", key), zap.Error(err))
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisRepo) Put(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		r.logger.Error("Failed to write redis key", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (r *RedisRepo) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisRepo) Close() error {
	return r.rdb.Close()
}
