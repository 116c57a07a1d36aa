package outbound

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// CommandKind 下发命令类别，每类独立计桶
type CommandKind string

const (
	// KindWrite 控制写命令（亮度、输入源、预设等），不等待应答
	KindWrite CommandKind = "write"
	// KindQuery 原始读命令，占用会话的串行查询通道直到应答或超时
	KindQuery CommandKind = "query"
)

// Limit 单类命令的令牌桶参数
type Limit struct {
	PerSecond int
	Burst     int
}

// KindStats 单类命令的限流统计
type KindStats struct {
	RatePerSecond int   `json:"rate_per_second"`
	Burst         int   `json:"burst"`
	AllowedTotal  int64 `json:"allowed_total"`
	RejectedTotal int64 `json:"rejected_total"`
}

type bucket struct {
	limiter  *rate.Limiter
	limit    Limit
	allowed  atomic.Int64
	rejected atomic.Int64
}

func (b *bucket) record(ok bool) bool {
	if ok {
		b.allowed.Add(1)
	} else {
		b.rejected.Add(1)
	}
	return ok
}

// RateLimiter 按命令类别节流控制接口。
// 未配置的类别不限流；桶在创建后不再增减，可并发使用。
type RateLimiter struct {
	buckets map[CommandKind]*bucket
}

// NewRateLimiter 创建限流器。PerSecond<=0 的类别不限流；Burst<=0 时取 PerSecond。
func NewRateLimiter(limits map[CommandKind]Limit) *RateLimiter {
	l := &RateLimiter{buckets: make(map[CommandKind]*bucket, len(limits))}
	for kind, lim := range limits {
		if lim.PerSecond <= 0 {
			continue
		}
		if lim.Burst <= 0 {
			lim.Burst = lim.PerSecond
		}
		l.buckets[kind] = &bucket{
			limiter: rate.NewLimiter(rate.Limit(lim.PerSecond), lim.Burst),
			limit:   lim,
		}
	}
	return l
}

// Limited 该类别是否受限
func (l *RateLimiter) Limited(kind CommandKind) bool {
	if l == nil {
		return false
	}
	_, ok := l.buckets[kind]
	return ok
}

// Allow 非阻塞取令牌
func (l *RateLimiter) Allow(kind CommandKind) bool {
	if l == nil {
		return true
	}
	b, ok := l.buckets[kind]
	if !ok {
		return true
	}
	return b.record(b.limiter.Allow())
}

// Wait 等待令牌，受 ctx 控制
func (l *RateLimiter) Wait(ctx context.Context, kind CommandKind) error {
	if l == nil {
		return nil
	}
	b, ok := l.buckets[kind]
	if !ok {
		return nil
	}
	err := b.limiter.Wait(ctx)
	b.record(err == nil)
	return err
}

// Stats 各受限类别的统计
func (l *RateLimiter) Stats() map[CommandKind]KindStats {
	out := make(map[CommandKind]KindStats)
	if l == nil {
		return out
	}
	for kind, b := range l.buckets {
		out[kind] = KindStats{
			RatePerSecond: b.limit.PerSecond,
			Burst:         b.limit.Burst,
			AllowedTotal:  b.allowed.Load(),
			RejectedTotal: b.rejected.Load(),
		}
	}
	return out
}
