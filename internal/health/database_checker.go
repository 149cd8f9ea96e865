package health

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/m600-assistant/internal/storage"
)

// DatabaseChecker 帧日志数据库检查
// 数据库只承载帧日志与历史查询，不可用时整体降级而非不可用；
// 两次检查之间帧日志出现丢弃（写库跟不上）同样视为降级。
type DatabaseChecker struct {
	pool        *pgxpool.Pool
	journal     *storage.Journal
	lastDropped atomic.Int64
}

// NewDatabaseChecker journal 可为 nil
func NewDatabaseChecker(pool *pgxpool.Pool, journal *storage.Journal) *DatabaseChecker {
	return &DatabaseChecker{pool: pool, journal: journal}
}

func (c *DatabaseChecker) Name() string { return "database" }

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if err := c.pool.Ping(ctx); err != nil {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: time.Since(start),
		}
	}

	stats := c.pool.Stat()
	util := 0.0
	if stats.MaxConns() > 0 {
		util = float64(stats.AcquiredConns()) / float64(stats.MaxConns())
	}
	status, message := StatusHealthy, "ok"
	if util > 0.9 {
		status, message = StatusDegraded, "connection pool near limit"
	}

	details := map[string]any{
		"total_conns":    stats.TotalConns(),
		"acquired_conns": stats.AcquiredConns(),
		"max_conns":      stats.MaxConns(),
		"utilization":    fmt.Sprintf("%.1f%%", util*100),
	}
	if c.journal != nil {
		dropped := c.journal.Dropped()
		details["journal_written"] = c.journal.Written()
		details["journal_dropped"] = dropped
		if prev := c.lastDropped.Swap(dropped); dropped > prev {
			status, message = StatusDegraded, fmt.Sprintf("frame journal dropped %d entries", dropped-prev)
		}
	}
	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}
