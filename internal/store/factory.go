package store

import (
	"context"
	"fmt"

	"shadebot/internal/config"
	"shadebot/internal/logging"
)

// Backend names accepted in store.backend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// New builds the store selected by cfg.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	opts := Options{Personas: cfg.Bot.Personas, HistoryLimit: cfg.Store.HistoryLimit}
	switch cfg.Store.Backend {
	case BackendMemory, "":
		logging.Store("Using in-memory conversation store")
		return NewMemoryStore(opts), nil
	case BackendSQLite:
		s, err := NewSQLiteStore(cfg.Store.SQLitePath, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		s, err := DialRedis(ctx, cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB, cfg.GetRedisTTL(), opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
