package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/nova-gateway/internal/metrics"
	"github.com/taoyao-code/nova-gateway/internal/outbound"
)

// RateLimit 按命令类别限流：令牌不足时返回 429。limiter 为空或该类别未受限时放行。
func RateLimit(limiter *outbound.RateLimiter, kind outbound.CommandKind, m *metrics.AppMetrics, logger *zap.Logger) gin.HandlerFunc {
	if !limiter.Limited(kind) {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if limiter.Allow(kind) {
			c.Next()
			return
		}
		if m != nil {
			m.APIRateLimited.WithLabelValues(string(kind)).Inc()
		}
		logger.Warn("api rate limited",
			zap.String("kind", string(kind)),
			zap.String("path", c.Request.URL.Path),
			zap.String("remote_addr", c.ClientIP()),
			zap.Int64("rejected_total", limiter.Stats()[kind].RejectedTotal),
		)
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"code":    http.StatusTooManyRequests,
			"message": "too many " + string(kind) + " commands, slow down",
			"kind":    kind,
		})
	}
}
