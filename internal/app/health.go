package app

import (
	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/nova-gateway/internal/health"
	redisstorage "github.com/taoyao-code/nova-gateway/internal/storage/redis"
)

// NewHealthAggregator 创建健康检查聚合器，初始只包含设备会话检查
func NewHealthAggregator(dev health.DeviceStatus) *health.Aggregator {
	return health.NewAggregator(
		health.NewDeviceChecker(dev),
	)
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}

// AddRedisChecker Redis 启用时添加状态镜像检查器
func AddRedisChecker(aggregator *health.Aggregator, store *redisstorage.StateStore) {
	if store == nil {
		return
	}
	aggregator.AddChecker(health.NewRedisChecker(store.Client(), store))
}
