package app

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/nova-gateway/internal/api"
	"github.com/taoyao-code/nova-gateway/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/nova-gateway/internal/config"
	"github.com/taoyao-code/nova-gateway/internal/device"
	"github.com/taoyao-code/nova-gateway/internal/metrics"
	"github.com/taoyao-code/nova-gateway/internal/notify"
	"github.com/taoyao-code/nova-gateway/internal/outbound"
)

// NewCommandLimiter 按命令类别创建限流器；速率为0的类别不限流
func NewCommandLimiter(cfg cfgpkg.RateLimitConfig) *outbound.RateLimiter {
	return outbound.NewRateLimiter(map[outbound.CommandKind]outbound.Limit{
		outbound.KindWrite: {PerSecond: cfg.PerSecond, Burst: cfg.Burst},
		outbound.KindQuery: {PerSecond: cfg.QueryPerSecond, Burst: cfg.QueryBurst},
	})
}

// RegisterAPIRoutes 注册控制接口
func RegisterAPIRoutes(r *gin.Engine, dev *device.Instance, hub *notify.Hub, cfg cfgpkg.APIConfig, appm *metrics.AppMetrics, logger *zap.Logger) {
	limiter := NewCommandLimiter(cfg.RateLimit)
	for kind, st := range limiter.Stats() {
		logger.Info("api rate limit", zap.String("kind", string(kind)), zap.Int("per_second", st.RatePerSecond), zap.Int("burst", st.Burst))
	}
	h := api.NewHandler(dev, hub, logger.Named("api"))
	api.RegisterRoutes(r, h, api.RouteOptions{
		Auth: middleware.AuthConfig{
			APIKeys: cfg.Auth.APIKeys,
			Enabled: cfg.Auth.Enabled,
		},
		Limiter: limiter,
		Metrics: appm,
		Logger:  logger,
	})
}
