package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/m600-assistant/internal/config"
	"github.com/taoyao-code/m600-assistant/internal/link"
	"github.com/taoyao-code/m600-assistant/internal/metrics"
	"github.com/taoyao-code/m600-assistant/internal/tcpserver"
)

// NewTCPServer 根据配置创建串口服务器接入，未启用时返回 nil
func NewTCPServer(cfg cfgpkg.TCPConfig, h link.Handler, appm *metrics.AppMetrics, logger *zap.Logger) *tcpserver.Server {
	if !cfg.Enabled {
		return nil
	}
	srv := tcpserver.New(cfg, logger)
	srv.SetHandler(h)
	if appm != nil {
		srv.SetMetricsCallbacks(func() { appm.TCPAccepted.Inc() })
	}
	return srv
}
