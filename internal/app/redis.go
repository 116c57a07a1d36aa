package app

import (
	cfgpkg "github.com/taoyao-code/nova-gateway/internal/config"
	redisstorage "github.com/taoyao-code/nova-gateway/internal/storage/redis"
	"go.uber.org/zap"
)

// 默认发布频道与快照键
const (
	DefaultRedisChannel     = "nova:state"
	DefaultRedisSnapshotKey = "nova:snapshot"
)

// NewRedisClient 创建Redis客户端，未启用时返回 nil；连接名使用网关ID
func NewRedisClient(cfg cfgpkg.RedisConfig, gatewayID string, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis is disabled, skipping initialization")
		return nil, nil
	}

	client, err := redisstorage.NewClient(cfg, gatewayID)
	if err != nil {
		return nil, err
	}

	logger.Info("redis client initialized",
		zap.String("addr", client.Addr()),
		zap.String("client_name", gatewayID),
		zap.Int("pool_size", cfg.PoolSize))

	return client, nil
}

// NewRedisStateStore 状态发布与快照存储
func NewRedisStateStore(client *redisstorage.Client, cfg cfgpkg.RedisConfig) *redisstorage.StateStore {
	if client == nil {
		return nil
	}
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultRedisChannel
	}
	key := cfg.SnapshotKey
	if key == "" {
		key = DefaultRedisSnapshotKey
	}
	return redisstorage.NewStateStore(client, channel, key)
}
