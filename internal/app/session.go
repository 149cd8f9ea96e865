package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/m600-assistant/internal/config"
	"github.com/taoyao-code/m600-assistant/internal/session"
)

// NewSession 构造链路会话管理器
func NewSession(cfg cfgpkg.SessionConfig, logger *zap.Logger) *session.Manager {
	logger.Info("session manager initialized", zap.Duration("online_timeout", cfg.OnlineTimeout))
	return session.New(cfg.OnlineTimeout)
}
