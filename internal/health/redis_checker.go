package health

import (
	"context"
	"fmt"
	"time"

	redisstorage "github.com/taoyao-code/nova-gateway/internal/storage/redis"
)

// 连接池占用超过该比例视为降级
const poolSaturation = 0.9

// RedisPool 状态镜像所用连接池（storage/redis.Client）
type RedisPool interface {
	Addr() string
	RoundTrip(ctx context.Context) (time.Duration, error)
	Pool() redisstorage.PoolSummary
}

// StateMirror 状态镜像写入情况（storage/redis.StateStore）
type StateMirror interface {
	Status() redisstorage.MirrorStatus
}

// RedisChecker 状态镜像检查器。
// PING 失败为不健康；最近一次发布或快照写入失败、连接池饱和为降级。
type RedisChecker struct {
	pool   RedisPool
	mirror StateMirror
}

// NewRedisChecker 创建检查器；mirror 可为空（只检查连接）
func NewRedisChecker(pool RedisPool, mirror StateMirror) *RedisChecker {
	return &RedisChecker{pool: pool, mirror: mirror}
}

// Name 返回检查器名称
func (c *RedisChecker) Name() string {
	return "redis"
}

// Check 执行健康检查
func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	details := map[string]any{"addr": c.pool.Addr()}

	rtt, err := c.pool.RoundTrip(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
			Details: details,
			Latency: time.Since(start),
		}
	}
	details["rtt"] = rtt.Round(time.Microsecond).String()

	pool := c.pool.Pool()
	details["pool"] = pool
	details["pool_utilization"] = fmt.Sprintf("%.1f%%", pool.Utilization*100)

	status, message := StatusHealthy, "ok"
	if pool.Utilization > poolSaturation {
		status, message = StatusDegraded, "connection pool near limit"
	}

	if c.mirror != nil {
		ms := c.mirror.Status()
		details["channel"] = ms.Channel
		details["snapshot_key"] = ms.SnapshotKey
		details["published"] = ms.Published
		details["saved"] = ms.Saved
		if ms.LastError != "" {
			details["last_error"] = ms.LastError
			details["last_error_at"] = ms.LastErrorAt
		}
		if ms.Failing() {
			status, message = StatusDegraded, "state mirror write failing: "+ms.LastError
		}
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
