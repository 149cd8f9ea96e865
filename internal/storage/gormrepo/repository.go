package gormrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/taoyao-code/m600-assistant/internal/storage"
	"github.com/taoyao-code/m600-assistant/internal/storage/models"
)

// 单次查询返回条数上限
const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Open 复用 pgx 连接池打开 GORM，表结构由 migrate 负责
func Open(pool *pgxpool.Pool) (*gorm.DB, error) {
	sqlDB := stdlib.OpenDBFromPool(pool)
	return gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
}

// Repository 基于 GORM 的 HistoryRepo 实现
type Repository struct {
	db *gorm.DB
}

// New 返回一个使用给定 *gorm.DB 的 HistoryRepo 实例。
func New(db *gorm.DB) storage.HistoryRepo {
	return &Repository{db: db}
}

// UpsertSnapshot 按 (link_id, module, command) 覆盖最新状态
func (r *Repository) UpsertSnapshot(ctx context.Context, s *models.StatusSnapshot) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "link_id"}, {Name: "module"}, {Name: "command"}},
			DoUpdates: clause.AssignmentColumns([]string{"fields", "summary", "updated_at"}),
		}).
		Create(s).Error
}

// GetSnapshot 读取某链路某模块某命令最新状态
func (r *Repository) GetSnapshot(ctx context.Context, linkID string, module, command int16) (*models.StatusSnapshot, error) {
	var s models.StatusSnapshot
	err := r.db.WithContext(ctx).
		Where("link_id = ? AND module = ? AND command = ?", linkID, module, command).
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSnapshots 某链路全部模块各命令最新状态
func (r *Repository) ListSnapshots(ctx context.Context, linkID string) ([]models.StatusSnapshot, error) {
	var out []models.StatusSnapshot
	err := r.db.WithContext(ctx).
		Where("link_id = ?", linkID).
		Order("module ASC, command ASC").
		Find(&out).Error
	return out, err
}

// ListFrameLogs 按时间倒序分页查询帧日志
func (r *Repository) ListFrameLogs(ctx context.Context, q storage.FrameQuery) ([]models.FrameLog, error) {
	tx := r.db.WithContext(ctx).Model(&models.FrameLog{})
	if q.LinkID != "" {
		tx = tx.Where("link_id = ?", q.LinkID)
	}
	if q.Module != nil {
		tx = tx.Where("module = ?", *q.Module)
	}
	if q.Direction != nil {
		tx = tx.Where("direction = ?", *q.Direction)
	}
	if !q.Since.IsZero() {
		tx = tx.Where("created_at >= ?", q.Since)
	}
	if !q.Until.IsZero() {
		tx = tx.Where("created_at < ?", q.Until)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	var out []models.FrameLog
	err := tx.Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Offset(q.Offset).
		Find(&out).Error
	return out, err
}
