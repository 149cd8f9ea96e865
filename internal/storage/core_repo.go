package storage

import (
	"context"
	"errors"
	"time"

	"github.com/taoyao-code/m600-assistant/internal/storage/models"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("not found")

// FrameWriter 帧日志写入（热路径，pgx 实现）
type FrameWriter interface {
	InsertFrameLog(ctx context.Context, l *models.FrameLog) (int64, error)
}

// FrameQuery 帧日志查询条件；零值字段不参与过滤
type FrameQuery struct {
	LinkID    string
	Module    *int16
	Direction *int16
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// HistoryRepo 面向 HTTP 查询的存储抽象（gorm 实现）
// 约束：上层不直接写 SQL；接口保持 DB-agnostic（面向模型与基础类型）。
type HistoryRepo interface {
	// UpsertSnapshot 按 (link_id, module, command) 覆盖最新状态
	UpsertSnapshot(ctx context.Context, s *models.StatusSnapshot) error
	// GetSnapshot 读取某链路某模块某命令的最新状态，不存在返回 ErrNotFound
	GetSnapshot(ctx context.Context, linkID string, module, command int16) (*models.StatusSnapshot, error)
	// ListSnapshots 某链路全部最新状态（按模块、命令排序）
	ListSnapshots(ctx context.Context, linkID string) ([]models.StatusSnapshot, error)
	// ListFrameLogs 按时间倒序分页查询帧日志
	ListFrameLogs(ctx context.Context, q FrameQuery) ([]models.FrameLog, error)
}
