package repository

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"bloomboard/config"
	"bloomboard/pkg/db"
	pkgredis "bloomboard/pkg/redis"
)

// Open builds the storage backend named by cfg.Storage.Driver, wrapped with
// instrumentation. Remote backends also get a circuit breaker.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (KVStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	logger.Info("Opening storage", zap.String("driver", driver), zap.String("key", cfg.Storage.Key))

	var (
		store KVStore
		err   error
	)
	switch driver {
	case "memory":
		store = NewMemoryRepo()
	case "file":
		store, err = NewFileRepo(cfg.Storage.Dir, logger)
	case "sqlite":
		store, err = OpenSQLite(ctx, cfg.Storage.Path, logger)
	case "redis":
		rdb := pkgredis.NewRedisClient(cfg.Redis)
		if err = rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			err = fmt.Errorf("failed to ping redis at %s: %w", cfg.Redis.Addr, err)
			break
		}
		store = WithBreaker(NewRedisRepo(rdb, logger), cfg.Breaker, logger)
	case "postgres":
		pool, perr := db.NewConnection(ctx, cfg.DB, logger)
		if perr != nil {
			err = perr
			break
		}
		pg, perr := NewPostgresRepo(ctx, pool, logger)
		if perr != nil {
			pool.Close()
			err = perr
			break
		}
		store = WithBreaker(pg, cfg.Breaker, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Storage.Driver)
	}
	if err != nil {
		logger.Error("Failed to open storage", zap.String("driver", driver), zap.Error(err))
		return nil, err
	}

	return Instrument(store, driver, logger), nil
}
