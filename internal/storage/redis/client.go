package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/taoyao-code/nova-gateway/internal/config"
)

// ErrDisabled 配置未启用 Redis
var ErrDisabled = errors.New("redis is not enabled")

// 首次连通检查的超时下限
const minConnectTimeout = time.Second

// Client 状态镜像使用的 Redis 连接池。
// 发布频道与快照哈希共用同一个池，连接名标识网关实例。
type Client struct {
	*redis.Client
	addr string
}

// NewClient 创建客户端并做一次 PING；name 写入 CLIENT SETNAME，便于在服务端区分网关实例
func NewClient(cfg cfgpkg.RedisConfig, name string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	c := &Client{Client: redis.NewClient(clientOptions(cfg, name)), addr: cfg.Addr}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout(cfg))
	defer cancel()
	if _, err := c.RoundTrip(ctx); err != nil {
		_ = c.Client.Close()
		return nil, fmt.Errorf("redis %s unreachable: %w", cfg.Addr, err)
	}
	return c, nil
}

func clientOptions(cfg cfgpkg.RedisConfig, name string) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		ClientName:   name,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// connectTimeout 拨号与一次往返的总时长，不低于 minConnectTimeout
func connectTimeout(cfg cfgpkg.RedisConfig) time.Duration {
	d := cfg.DialTimeout + cfg.ReadTimeout
	if d < minConnectTimeout {
		return minConnectTimeout
	}
	return d
}

// Addr 服务端地址
func (c *Client) Addr() string { return c.addr }

// RoundTrip PING 一次并返回往返耗时
func (c *Client) RoundTrip(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.Ping(ctx).Err(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// PoolSummary 连接池摘要
type PoolSummary struct {
	TotalConns  uint32  `json:"total_conns"`
	IdleConns   uint32  `json:"idle_conns"`
	StaleConns  uint32  `json:"stale_conns"`
	Hits        uint32  `json:"hits"`
	Misses      uint32  `json:"misses"`
	Timeouts    uint32  `json:"timeouts"`
	Utilization float64 `json:"utilization"` // 占用连接 / 总连接
}

// Pool 当前连接池摘要
func (c *Client) Pool() PoolSummary {
	return summarize(c.PoolStats())
}

func summarize(st *redis.PoolStats) PoolSummary {
	if st == nil {
		return PoolSummary{}
	}
	s := PoolSummary{
		TotalConns: st.TotalConns,
		IdleConns:  st.IdleConns,
		StaleConns: st.StaleConns,
		Hits:       st.Hits,
		Misses:     st.Misses,
		Timeouts:   st.Timeouts,
	}
	if st.TotalConns > 0 && st.TotalConns >= st.IdleConns {
		s.Utilization = float64(st.TotalConns-st.IdleConns) / float64(st.TotalConns)
	}
	return s
}
