package main

import (
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/BirthdayBox/config"
	"github.com/Gopher0727/BirthdayBox/internal/api"
	"github.com/Gopher0727/BirthdayBox/internal/repository"
	"github.com/Gopher0727/BirthdayBox/internal/storage"
)

type backend struct {
	store  repository.Store
	checks map[string]api.HealthCheck
	close  func()
}

// openStore builds the configured persistence backend. Messages are cached
// in Redis when a client is available.
func openStore(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) (*backend, error) {
	var b *backend
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := storage.InitPostgres(storage.BuildDSN(cfg.Postgres), cfg.Postgres.MaxIdleConns, cfg.Postgres.MaxOpenConns, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("postgres 初始化失败: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("postgres 初始化失败: %w", err)
		}
		b = &backend{
			store:  repository.NewStore(db),
			checks: map[string]api.HealthCheck{"postgres": sqlDB.PingContext},
			close:  func() { _ = sqlDB.Close() },
		}
	case "memory":
		store, err := openMemoryStore()
		if err != nil {
			return nil, err
		}
		logger.Warn("using in-memory storage, data is lost on restart")
		b = &backend{store: store, checks: map[string]api.HealthCheck{}, close: func() {}}
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if rdb != nil {
		b.store.Messages = repository.NewCachedMessageRepository(b.store.Messages, rdb, cfg.Redis.MessageTTL, logger)
	}
	return b, nil
}
