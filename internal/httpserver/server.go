package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/m600-assistant/internal/config"
)

// Server HTTP 服务封装
type Server struct {
	engine *gin.Engine
	srv    *http.Server
	logger *zap.Logger
}

// New 创建并配置 Gin + HTTP Server，注册指标与 pprof 路由
// 业务路由由调用方通过 Engine() 注册。
func New(cfg cfgpkg.HTTPConfig, metricsPath string, metricsHandler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if metricsHandler != nil {
		r.GET(metricsPath, gin.WrapH(metricsHandler))
	}
	if cfg.Pprof.Enable {
		registerPprof(r, cfg.Pprof.Prefix)
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Server{engine: r, srv: srv, logger: logger}
}

// Engine 返回 gin 引擎
func (s *Server) Engine() *gin.Engine { return s.engine }

// Handler 返回 HTTP 处理器（测试用）
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start 启动 HTTP 服务（阻塞），Shutdown 后返回 nil
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve 在给定监听器上服务（测试用），Shutdown 后返回 nil
func (s *Server) Serve(ln net.Listener) error {
	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func registerPprof(r *gin.Engine, prefix string) {
	if prefix == "" {
		prefix = "/debug/pprof"
	}
	g := r.Group(prefix)
	g.GET("/", gin.WrapF(pprof.Index))
	g.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	g.GET("/profile", gin.WrapF(pprof.Profile))
	g.GET("/symbol", gin.WrapF(pprof.Symbol))
	g.GET("/trace", gin.WrapF(pprof.Trace))
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		g.GET("/"+name, gin.WrapH(pprof.Handler(name)))
	}
}

// requestLogger 访问日志；websocket 长连接只记录建立
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	l := logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client", c.ClientIP()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			l.Error("request", fields...)
		case status >= http.StatusBadRequest:
			l.Warn("request", fields...)
		default:
			l.Debug("request", fields...)
		}
	}
}
