package storage

import (
	"context"

	"github.com/redis/go-redis/v9"

	"dai-trader/config"
	"dai-trader/internal/database"
	"dai-trader/internal/errs"
	"dai-trader/internal/logging"
)

// Open builds the backend named by cfg.StorageConfig.Backend. The redis
// backend reuses client when it is not nil.
func Open(ctx context.Context, cfg *config.Config, client *redis.Client) (Store, error) {
	logger := logging.WithComponent("storage")
	sc := cfg.StorageConfig

	switch sc.Backend {
	case "memory":
		logger.Warn("state is kept in memory and lost on exit")
		return NewMemory(), nil
	case "sqlite":
		s, err := NewSQLite(sc.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("state store opened", "backend", "sqlite", "path", sc.SQLitePath)
		return s, nil
	case "postgres":
		db, err := database.NewDB(ctx, cfg.DatabaseConfig)
		if err != nil {
			return nil, err
		}
		p, err := NewPostgres(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("state store opened", "backend", "postgres", "database", cfg.DatabaseConfig.Database)
		return p, nil
	case "redis":
		if client == nil {
			client = redis.NewClient(&redis.Options{
				Addr:     cfg.RedisConfig.Address,
				Password: cfg.RedisConfig.Password,
				DB:       cfg.RedisConfig.DB,
				PoolSize: cfg.RedisConfig.PoolSize,
			})
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, errs.Data("storage.Open", err)
		}
		logger.Info("state store opened", "backend", "redis", "address", cfg.RedisConfig.Address)
		return NewRedisStore(client, sc.KeyPrefix), nil
	default:
		return nil, errs.Config("unknown storage.backend %q", sc.Backend)
	}
}
