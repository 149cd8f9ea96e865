package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/taoyao-code/m600-assistant/internal/config"
)

// Client 状态缓存使用的 Redis 连接
type Client struct {
	*redis.Client
	addr string
}

// PoolStats 连接池统计
type PoolStats struct {
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
	StaleConns uint32 `json:"stale_conns"`
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
}

// Utilization 在用连接占比
func (s PoolStats) Utilization() float64 {
	if s.TotalConns == 0 {
		return 0
	}
	return float64(s.TotalConns-s.IdleConns) / float64(s.TotalConns)
}

// NewClient 创建客户端并 Ping 确认可用
func NewClient(cfg cfgpkg.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	c := &Client{Client: rdb, addr: cfg.Addr}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := c.HealthCheck(ctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return c, nil
}

// Addr 服务地址
func (c *Client) Addr() string { return c.addr }

// Close 关闭连接池
func (c *Client) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// HealthCheck Ping 并返回往返耗时
func (c *Client) HealthCheck(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := c.Ping(ctx).Err()
	return time.Since(start), err
}

// Stats 连接池统计
func (c *Client) Stats() PoolStats {
	s := c.PoolStats()
	return PoolStats{
		TotalConns: s.TotalConns,
		IdleConns:  s.IdleConns,
		StaleConns: s.StaleConns,
		Hits:       s.Hits,
		Misses:     s.Misses,
		Timeouts:   s.Timeouts,
	}
}
