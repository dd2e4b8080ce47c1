package storage

import (
	"context"
	"fmt"

	"grant-assistant/internal/common/config"
	"grant-assistant/internal/common/database"
	"grant-assistant/internal/common/logger"
)

const (
	BackendAuto   = "auto"
	BackendLocal  = "local"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// candidates lists the backends tried for a configured choice, most capable first.
func candidates(backend string) []string {
	switch backend {
	case BackendRedis:
		return []string{BackendRedis, BackendSQLite, BackendLocal}
	case BackendSQLite, BackendAuto, "":
		return []string{BackendSQLite, BackendLocal}
	default:
		return []string{BackendLocal}
	}
}

// Open probes the configured backend and falls back to less capable ones
// when it cannot be initialized. The returned adapter is instrumented.
func Open(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (Adapter, error) {
	log = logger.Component(log, "storage")

	var lastErr error
	for _, name := range candidates(cfg.Backend) {
		a, err := build(name, cfg)
		if err == nil {
			err = a.Initialize(ctx)
			if err != nil {
				_ = a.Close()
			}
		}
		if err != nil {
			lastErr = err
			log.Warn("storage backend unavailable, falling back", map[string]interface{}{
				"backend": name,
				"error":   err.Error(),
			})
			continue
		}

		log.Info("storage backend ready", map[string]interface{}{
			"backend":   name,
			"requested": cfg.Backend,
		})
		return Instrument(a), nil
	}
	return nil, fmt.Errorf("no storage backend available: %w", lastErr)
}

func build(name string, cfg config.StorageConfig) (Adapter, error) {
	switch name {
	case BackendRedis:
		client, err := database.NewRedis(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, cfg.Redis.Namespace), nil
	case BackendSQLite:
		client, err := database.NewSQLite(cfg.SQLite)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(client), nil
	default:
		return NewLocalStore(cfg.Local), nil
	}
}
