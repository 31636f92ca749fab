// Package repository selects and opens the configured token store.
package repository

import (
	"fmt"

	"github.com/ulule/limiter/v3"
	limitermemory "github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/repository/memory"
	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/repository/postgres"
	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/repository/redis"
	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/repository/sqlite"
	"github.com/wadjakorntonsri/go-safelink/pkg/config"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

const limiterPrefix = "safelink:limit"

// Open returns the token store named by cfg.StoreDriver.
func Open(cfg *config.Config) (ports.TokenStore, error) {
	var (
		store ports.TokenStore
		err   error
	)
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		store, err = openStore(sqlite.NewSQLiteRepository(cfg.DatabaseURL))
	case config.StorePostgres:
		store, err = openStore(postgres.NewPostgresRepository(cfg.PostgresURL))
	case config.StoreRedis:
		store, err = openStore(redis.NewRedisRepository(cfg.RedisURL))
	case config.StoreMemory:
		store = memory.NewRepository()
	default:
		err = fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	return store, nil
}

// openStore drops the typed nil a constructor returns alongside an error.
func openStore[T ports.TokenStore](s T, err error) (ports.TokenStore, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// LimiterStore shares the Redis connection when the token store is Redis so
// rate limits hold across instances. Everything else counts in process.
func LimiterStore(store ports.TokenStore) (limiter.Store, error) {
	if rs, ok := store.(*redis.RedisRepository); ok {
		s, err := limiterredis.NewStoreWithOptions(rs.Client(), limiter.StoreOptions{Prefix: limiterPrefix})
		if err != nil {
			return nil, fmt.Errorf("rate limit store: %w", err)
		}
		return s, nil
	}
	return limitermemory.NewStoreWithOptions(limiter.StoreOptions{Prefix: limiterPrefix}), nil
}
