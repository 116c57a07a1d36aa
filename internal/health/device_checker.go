package health

import (
	"context"
	"time"

	"github.com/taoyao-code/nova-gateway/internal/session"
)

// DeviceStatus 会话状态来源
type DeviceStatus interface {
	Status() session.StatusInfo
	LastResponse() time.Time
	Pending() int
}

// DeviceChecker 处理器连接检查器。
// Connected 为健康；离线编程、连接中为降级；ConnectionFailure 为不健康。
type DeviceChecker struct {
	dev DeviceStatus
	now func() time.Time
}

// NewDeviceChecker 创建处理器连接检查器
func NewDeviceChecker(dev DeviceStatus) *DeviceChecker {
	return &DeviceChecker{dev: dev, now: time.Now}
}

// Name 返回检查器名称
func (c *DeviceChecker) Name() string {
	return "device"
}

// Check 执行健康检查
func (c *DeviceChecker) Check(_ context.Context) CheckResult {
	start := c.now()
	st := c.dev.Status()

	details := map[string]any{
		"status":  st.Status.String(),
		"since":   st.Since,
		"pending": c.dev.Pending(),
	}
	if last := c.dev.LastResponse(); !last.IsZero() {
		details["last_response_ago"] = c.now().Sub(last).Round(time.Millisecond).String()
	}

	status := StatusDegraded
	switch st.Status {
	case session.StatusConnected:
		status = StatusHealthy
	case session.StatusConnectionFailure:
		status = StatusUnhealthy
	}

	return CheckResult{
		Status:  status,
		Message: st.Message,
		Details: details,
		Latency: c.now().Sub(start),
	}
}
