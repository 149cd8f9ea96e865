package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/m600-assistant/internal/config"
	"github.com/taoyao-code/m600-assistant/internal/link"
)

// Server 串口服务器（DTU 透传）接入：每个 TCP 连接即一条 M600 链路
type Server struct {
	cfg     cfgpkg.TCPConfig
	ln      net.Listener
	wg      sync.WaitGroup
	stopC   chan struct{}
	handler link.Handler
	logger  *zap.Logger

	limiter    *ConnectionLimiter
	rate       *RateLimiter
	nextConnID atomic.Uint64

	mu    sync.Mutex
	conns map[*ConnContext]struct{}

	// 可选指标回调
	onAccept func()
}

// New 创建 TCP 接入服务
func New(cfg cfgpkg.TCPConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:     cfg,
		stopC:   make(chan struct{}),
		logger:  logger.Named("tcp"),
		limiter: NewConnectionLimiter(cfg.MaxConnections, 100*time.Millisecond),
		rate:    NewRateLimiter(cfg.AcceptRate, cfg.AcceptBurst),
		conns:   make(map[*ConnContext]struct{}),
	}
}

// SetHandler 设置链路回调
func (s *Server) SetHandler(h link.Handler) { s.handler = h }

// SetMetricsCallbacks 设置指标回调
func (s *Server) SetMetricsCallbacks(onAccept func()) { s.onAccept = onAccept }

// Addr 实际监听地址（Start 之后有效）
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start 监听并接受连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	if s.handler == nil {
		return errors.New("tcpserver: handler not set")
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("tcp listener started", zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopC:
				return
			default:
			}
			// 短暂错误等待后重试
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if !s.rate.Allow() {
			s.logger.Warn("accept rate exceeded, closing", zap.String("remote", conn.RemoteAddr().String()))
			_ = conn.Close()
			continue
		}
		if err := s.limiter.Acquire(context.Background()); err != nil {
			s.logger.Warn("connection limit reached, closing",
				zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			_ = conn.Close()
			continue
		}
		if s.onAccept != nil {
			s.onAccept()
		}

		cc := newConnContext(s, conn)
		s.track(cc, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.limiter.Release()
			defer s.track(cc, false)
			cc.run(s.handler)
		}()
	}
}

func (s *Server) track(cc *ConnContext, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[cc] = struct{}{}
	} else {
		delete(s.conns, cc)
	}
}

// ActiveConnections 当前连接数
func (s *Server) ActiveConnections() int { return s.limiter.Current() }

// LimiterStats 连接数限流统计
func (s *Server) LimiterStats() LimiterStats { return s.limiter.Stats() }

// RateStats 接入速率统计
func (s *Server) RateStats() RateLimiterStats { return s.rate.Stats() }

// Shutdown 关闭监听与全部连接并等待退出
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stopC)
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.mu.Lock()
	for cc := range s.conns {
		_ = cc.Close()
	}
	s.mu.Unlock()

	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
