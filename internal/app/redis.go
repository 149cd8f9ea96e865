package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/m600-assistant/internal/config"
	"github.com/taoyao-code/m600-assistant/internal/health"
	redisstorage "github.com/taoyao-code/m600-assistant/internal/storage/redis"
)

// NewRedisClient 创建Redis客户端，未启用时返回 nil
func NewRedisClient(cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("pool_size", cfg.PoolSize))

	return client, nil
}

// NewStatusCache 创建状态缓存，客户端为 nil 时返回 nil
func NewStatusCache(client *redisstorage.Client, cfg cfgpkg.RedisConfig) *redisstorage.StatusCache {
	if client == nil {
		return nil
	}
	return redisstorage.NewStatusCache(client, cfg.StatusTTL)
}

// AddRedisChecker 添加Redis检查器到聚合器
func AddRedisChecker(aggregator *health.Aggregator, redisClient *redisstorage.Client) {
	if redisClient != nil {
		aggregator.AddChecker(health.NewRedisChecker(redisClient))
	}
}
