package app

import (
	"context"

	"oauth-demo/internal/config"
	"oauth-demo/internal/logger"
	"oauth-demo/internal/redis"
	"oauth-demo/internal/session"
)

type Infra struct {
	Redis    *redis.Client
	Sessions session.Store
}

// setupInfra picks the session store: redis when an address is
// configured, process memory otherwise.
func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set, sessions are kept in memory", nil)
		return &Infra{Sessions: session.NewMemoryStore()}, nil
	}

	redisClient, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}

	logger.Info("redis ready", map[string]any{"addr": cfg.RedisAddr, "db": cfg.RedisDB})

	return &Infra{
		Redis:    redisClient,
		Sessions: session.NewRedisStore(redisClient.Client),
	}, nil
}

func (i *Infra) Close() error {
	if i.Redis != nil {
		return i.Redis.Close()
	}
	return nil
}
