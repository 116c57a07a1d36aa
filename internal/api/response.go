package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/nova-gateway/internal/api/middleware"
	"github.com/taoyao-code/nova-gateway/internal/catalog"
	"github.com/taoyao-code/nova-gateway/internal/control"
	"github.com/taoyao-code/nova-gateway/internal/outbound"
)

// StandardResponse 统一响应
type StandardResponse struct {
	Code      int    `json:"code"`           // 0=成功, >0=错误码
	Message   string `json:"message"`        // 消息
	Data      any    `json:"data,omitempty"` // 业务数据
	RequestID string `json:"request_id"`     // 请求追踪ID
	Timestamp int64  `json:"timestamp"`      // 时间戳
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, StandardResponse{
		Code:      0,
		Message:   "ok",
		Data:      data,
		RequestID: middleware.RequestID(c),
		Timestamp: time.Now().Unix(),
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, StandardResponse{
		Code:      status,
		Message:   message,
		RequestID: middleware.RequestID(c),
		Timestamp: time.Now().Unix(),
	})
}

// statusFor 领域错误到 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnknownModel),
		errors.Is(err, catalog.ErrUnknownChoice),
		errors.Is(err, control.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, control.ErrNoModel):
		return http.StatusConflict
	case errors.Is(err, control.ErrCapabilityUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, outbound.ErrRequestTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, outbound.ErrNoFreeSequence):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func respondErr(c *gin.Context, err error) {
	respondError(c, statusFor(err), err.Error())
}
