package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/m600-assistant/internal/config"
	"github.com/taoyao-code/m600-assistant/internal/migrate"
	"github.com/taoyao-code/m600-assistant/internal/storage"
	"github.com/taoyao-code/m600-assistant/internal/storage/gormrepo"
	pgstorage "github.com/taoyao-code/m600-assistant/internal/storage/pg"
)

// journalBuffer 帧日志异步缓冲条数
const journalBuffer = 1024

// Storage 持久化组件：pgx 写帧日志，GORM 负责快照与历史查询
type Storage struct {
	Pool    *pgxpool.Pool
	History storage.HistoryRepo
	Journal *storage.Journal
}

// Close 关闭连接池
func (s *Storage) Close() {
	if s != nil && s.Pool != nil {
		s.Pool.Close()
	}
}

// ConnectDBAndMigrate 建立数据库连接并按需执行内置迁移
func ConnectDBAndMigrate(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	dbpool, err := pgstorage.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error("db connect error", zap.Error(err))
		return nil, err
	}
	if cfg.AutoMigrate {
		versions, err := (migrate.Runner{FS: migrate.Embedded()}).Up(ctx, dbpool)
		if err != nil {
			log.Error("db migrate error", zap.Error(err))
			dbpool.Close()
			return nil, err
		}
		log.Info("db migrations applied", zap.Int64s("versions", versions))
	}
	return dbpool, nil
}

// NewStorage DSN 为空时返回 nil（不持久化）
func NewStorage(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*Storage, error) {
	if cfg.DSN == "" {
		log.Info("database dsn empty, frame journal disabled")
		return nil, nil
	}
	dbpool, err := ConnectDBAndMigrate(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	gdb, err := gormrepo.Open(dbpool)
	if err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	history := gormrepo.New(gdb)
	repo := &pgstorage.Repository{Pool: dbpool}
	return &Storage{
		Pool:    dbpool,
		History: history,
		Journal: storage.NewJournal(repo, history, journalBuffer, log),
	}, nil
}
