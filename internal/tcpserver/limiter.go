package tcpserver

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// ConnectionLimiter 并发连接数上限（信号量）
type ConnectionLimiter struct {
	sem      chan struct{}
	wait     time.Duration
	active   atomic.Int64
	rejected atomic.Int64
}

// NewConnectionLimiter maxConn 为最大并发连接数，wait 为获取许可的最长等待
func NewConnectionLimiter(maxConn int, wait time.Duration) *ConnectionLimiter {
	if maxConn <= 0 {
		maxConn = 64
	}
	if wait <= 0 {
		wait = time.Second
	}
	return &ConnectionLimiter{sem: make(chan struct{}, maxConn), wait: wait}
}

// Acquire 获取连接许可
func (l *ConnectionLimiter) Acquire(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()
	select {
	case l.sem <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		l.rejected.Add(1)
		return fmt.Errorf("connection limit exceeded: max=%d", cap(l.sem))
	}
}

// Release 释放连接许可
func (l *ConnectionLimiter) Release() {
	select {
	case <-l.sem:
		l.active.Add(-1)
	default:
	}
}

// Current 当前活跃连接数
func (l *ConnectionLimiter) Current() int { return int(l.active.Load()) }

// Stats 统计信息
func (l *ConnectionLimiter) Stats() LimiterStats {
	max := cap(l.sem)
	cur := l.Current()
	return LimiterStats{
		MaxConnections:    max,
		ActiveConnections: cur,
		RejectedTotal:     l.rejected.Load(),
		Utilization:       float64(cur) / float64(max),
	}
}

// LimiterStats 连接限流统计
type LimiterStats struct {
	MaxConnections    int     `json:"max_connections"`
	ActiveConnections int     `json:"active_connections"`
	RejectedTotal     int64   `json:"rejected_total"`
	Utilization       float64 `json:"utilization"`
}
