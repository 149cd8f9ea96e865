package health

import (
	"context"
	"fmt"
	"time"

	redisstorage "github.com/taoyao-code/m600-assistant/internal/storage/redis"
)

// RedisProbe Redis 探测面（*redisstorage.Client 满足）
type RedisProbe interface {
	Addr() string
	HealthCheck(ctx context.Context) (time.Duration, error)
	Stats() redisstorage.PoolStats
}

// RedisChecker 状态缓存检查
// 缓存不可用不影响串口收发，因此最差为 Degraded。
type RedisChecker struct {
	probe RedisProbe
}

func NewRedisChecker(probe RedisProbe) *RedisChecker {
	return &RedisChecker{probe: probe}
}

func (c *RedisChecker) Name() string { return "redis" }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	rtt, err := c.probe.HealthCheck(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("ping %s failed: %v", c.probe.Addr(), err),
			Latency: time.Since(start),
		}
	}

	stats := c.probe.Stats()
	util := stats.Utilization()
	status, message := StatusHealthy, "ok"
	if util > 0.9 {
		status, message = StatusDegraded, "connection pool near limit"
	}
	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]any{
			"addr":        c.probe.Addr(),
			"ping_ms":     rtt.Milliseconds(),
			"pool":        stats,
			"utilization": fmt.Sprintf("%.1f%%", util*100),
		},
		Latency: time.Since(start),
	}
}
