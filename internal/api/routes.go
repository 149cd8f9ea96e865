package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/m600-assistant/internal/api/middleware"
)

// RouteOptions 路由选项
type RouteOptions struct {
	Auth        middleware.AuthConfig
	CORS        bool
	CommandRate float64 // 命令接口每秒请求数
}

// RegisterRoutes 注册 /api/v1 与 /ws/records
// ws 为 nil 时不注册实时推送。
func RegisterRoutes(r *gin.Engine, h *Handler, ws http.Handler, opts RouteOptions, logger *zap.Logger) {
	if r == nil || h == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.CORS {
		r.Use(middleware.CORS())
	}

	v1 := r.Group("/api/v1")
	v1.GET("/links", h.ListLinks)
	v1.GET("/links/:link/status", h.GetStatus)
	v1.GET("/links/:link/frames", h.ListFrames)
	v1.GET("/links/:link/snapshots", h.ListSnapshots)
	v1.GET("/schemas", h.ListSchemas)
	v1.POST("/decode", h.Decode)

	// 写接口：认证 + 限流
	if opts.Auth.Enabled {
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(opts.Auth.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}
	v1.POST("/links/:link/commands",
		middleware.APIKeyAuth(opts.Auth, logger),
		middleware.RateLimit(opts.CommandRate, 5),
		h.SendCommand)

	if ws != nil {
		r.GET("/ws/records", gin.WrapH(ws))
	}
	logger.Info("api routes registered", zap.Bool("ws", ws != nil))
}
