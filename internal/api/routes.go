package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/nova-gateway/internal/api/middleware"
	"github.com/taoyao-code/nova-gateway/internal/metrics"
	"github.com/taoyao-code/nova-gateway/internal/outbound"
)

// RouteOptions 路由依赖
type RouteOptions struct {
	Auth    middleware.AuthConfig
	Limiter *outbound.RateLimiter
	Metrics *metrics.AppMetrics
	Logger  *zap.Logger
}

// RegisterRoutes 注册 /api/v1 路由
func RegisterRoutes(r *gin.Engine, h *Handler, opts RouteOptions) {
	if r == nil || h == nil {
		return
	}
	logger := h.logger
	if opts.Logger != nil {
		logger = opts.Logger
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RequestTracing(), middleware.CORS())
	if opts.Auth.Enabled {
		v1.Use(middleware.APIKeyAuth(opts.Auth, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(opts.Auth.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	// 查询
	v1.GET("/status", h.GetStatus)
	v1.GET("/state", h.GetState)
	v1.GET("/variables", h.GetVariables)
	v1.GET("/feedbacks", h.ListFeedbacks)
	v1.GET("/feedbacks/:id", h.EvaluateFeedback)
	v1.GET("/model", h.GetModel)
	v1.GET("/models", h.ListModels)
	v1.GET("/events", h.Events)

	// 控制命令（按类别限流）
	cmd := v1.Group("")
	cmd.Use(middleware.RateLimit(opts.Limiter, outbound.KindWrite, opts.Metrics, logger))
	cmd.POST("/brightness", h.SetBrightness)
	cmd.POST("/display-mode", h.SetDisplayMode)
	cmd.POST("/input", h.SetInput)
	cmd.POST("/preset", h.LoadPreset)
	cmd.POST("/working-mode", h.SetWorkingMode)
	cmd.POST("/test-pattern", h.SetTestPattern)
	cmd.POST("/scaling", h.SetScaling)
	cmd.POST("/pip", h.SetPIP)
	cmd.POST("/take", h.Take)
	cmd.PUT("/config", h.UpdateConfig)
	v1.POST("/raw/query", middleware.RateLimit(opts.Limiter, outbound.KindQuery, opts.Metrics, logger), h.RawQuery)

	logger.Info("api routes registered", zap.Int("endpoints", 19))
}
