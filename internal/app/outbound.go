package app

import (
	"context"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/m600-assistant/internal/config"
	"github.com/taoyao-code/m600-assistant/internal/metrics"
	"github.com/taoyao-code/m600-assistant/internal/outbound"
	"github.com/taoyao-code/m600-assistant/internal/session"
	"github.com/taoyao-code/m600-assistant/internal/storage"
)

// StartOutbound 启动下行调度器，ctx 取消后停止并丢弃未发送命令
func StartOutbound(ctx context.Context, cfg cfgpkg.OutboundConfig, sess *session.Manager, appm *metrics.AppMetrics, journal *storage.Journal, logger *zap.Logger) *outbound.Dispatcher {
	d := outbound.New(sess.GetConn, outbound.Options{
		Rate:       cfg.Rate,
		Burst:      cfg.Burst,
		QueueSize:  cfg.QueueSize,
		WriteDelay: cfg.WriteDelay,
	}, logger, appm, journal)
	go d.Run(ctx)
	return d
}
