package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cfgpkg "github.com/taoyao-code/m600-assistant/internal/config"
)

// 帧日志写入量小，连接池保持很小
const (
	defaultMaxConns    = 4
	defaultMinConns    = 1
	defaultMaxLifetime = time.Hour
	pingTimeout        = 3 * time.Second
)

// NewPool 创建 pgx 连接池并探活
func NewPool(ctx context.Context, cfg cfgpkg.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	pcfg, err := poolConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// poolConfig 解析 DSN 并套用连接池参数
// 日志器为 debug 级别时记录每条 SQL，否则只记录 warn 以上。
func poolConfig(cfg cfgpkg.DatabaseConfig, logger *zap.Logger) (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pcfg.MaxConns = defaultMaxConns
	if cfg.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	pcfg.MinConns = defaultMinConns
	if cfg.MaxIdleConns > 0 {
		pcfg.MinConns = int32(min(cfg.MaxIdleConns, int(pcfg.MaxConns)))
	}
	pcfg.MaxConnLifetime = defaultMaxLifetime
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	pcfg.MaxConnIdleTime = 30 * time.Minute
	pcfg.HealthCheckPeriod = time.Minute

	if logger != nil {
		level := tracelog.LogLevelWarn
		if logger.Core().Enabled(zapcore.DebugLevel) {
			level = tracelog.LogLevelTrace
		}
		pcfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   tracelog.LoggerFunc(zapTraceLog(logger.Named("pgx"))),
			LogLevel: level,
		}
	}
	return pcfg, nil
}

// zapTraceLog 把 pgx 的 tracelog 输出转到 zap
func zapTraceLog(logger *zap.Logger) func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	return func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		fields := make([]zap.Field, 0, len(data))
		for k, v := range data {
			fields = append(fields, zap.Any(k, v))
		}
		var lvl zapcore.Level
		switch level {
		case tracelog.LogLevelTrace, tracelog.LogLevelDebug:
			lvl = zapcore.DebugLevel
		case tracelog.LogLevelWarn:
			lvl = zapcore.WarnLevel
		case tracelog.LogLevelError:
			lvl = zapcore.ErrorLevel
		default:
			lvl = zapcore.InfoLevel
		}
		if ce := logger.Check(lvl, msg); ce != nil {
			ce.Write(fields...)
		}
	}
}
