package gateway

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallparish/offertory/internal/config"
	"github.com/smallparish/offertory/internal/gateway/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway",
	fx.Provide(newRedisClient),
	fx.Provide(provideReader),
)

func newRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

func provideReader(cfg config.Config, client *redis.Client, log *zap.Logger) domain.Reader {
	inner := NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout, log)
	return NewCachedReader(inner, client, log)
}
