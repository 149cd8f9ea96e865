package tcpserver

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/m600-assistant/internal/link"
)

// ConnContext 一个 TCP 连接对应的链路：读循环 + 异步写队列
type ConnContext struct {
	s      *Server
	c      net.Conn
	id     string
	writeC chan []byte
	closed atomic.Bool
	doneC  chan struct{}
	once   sync.Once
}

func newConnContext(s *Server, c net.Conn) *ConnContext {
	n := s.nextConnID.Add(1)
	return &ConnContext{
		s:      s,
		c:      c,
		id:     fmt.Sprintf("tcp-%d@%s", n, c.RemoteAddr()),
		writeC: make(chan []byte, 64),
		doneC:  make(chan struct{}),
	}
}

// ID 链路ID（单进程唯一）
func (cc *ConnContext) ID() string { return cc.id }

func (cc *ConnContext) Kind() string { return link.KindTCP }

// RemoteAddr 返回远端地址
func (cc *ConnContext) RemoteAddr() net.Addr { return cc.c.RemoteAddr() }

// Write 异步写入，写队列满时等待写超时
func (cc *ConnContext) Write(b []byte) error {
	if cc.closed.Load() {
		return link.ErrClosed
	}
	// 复制一份，避免调用方复用底层切片
	dup := make([]byte, len(b))
	copy(dup, b)
	to := cc.s.cfg.WriteTimeout
	if to <= 0 {
		to = 3 * time.Second
	}
	t := time.NewTimer(to)
	defer t.Stop()
	select {
	case cc.writeC <- dup:
		return nil
	case <-cc.doneC:
		return link.ErrClosed
	case <-t.C:
		return errors.New("write queue timeout")
	}
}

// Close 关闭连接；读循环随之退出
func (cc *ConnContext) Close() error {
	if !cc.closed.CompareAndSwap(false, true) {
		return nil
	}
	return cc.c.Close()
}

// Done 返回连接关闭通知通道
func (cc *ConnContext) Done() <-chan struct{} { return cc.doneC }

// run 启动读/写循环，阻塞直至连接结束
func (cc *ConnContext) run(h link.Handler) {
	logger := cc.s.logger.With(zap.String("link", cc.id))
	logger.Info("link connected")

	cb := h(cc)

	// 写循环；doneC 关闭后退出，队列中剩余的帧丢弃
	doneW := make(chan struct{})
	go func() {
		defer close(doneW)
		for {
			select {
			case msg := <-cc.writeC:
				if cc.s.cfg.WriteTimeout > 0 {
					_ = cc.c.SetWriteDeadline(time.Now().Add(cc.s.cfg.WriteTimeout))
				}
				if _, err := cc.c.Write(msg); err != nil {
					logger.Warn("write failed", zap.Error(err))
					_ = cc.Close()
				}
			case <-cc.doneC:
				return
			}
		}
	}()

	// 读循环
	buf := make([]byte, 4096)
	for {
		if cc.s.cfg.ReadTimeout > 0 {
			_ = cc.c.SetReadDeadline(time.Now().Add(cc.s.cfg.ReadTimeout))
		}
		n, err := cc.c.Read(buf)
		if n > 0 && cb.OnData != nil {
			cb.OnData(buf[:n])
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() && !cc.closed.Load() {
				// 空闲超时视为链路失效
				logger.Info("read idle timeout")
			}
			break
		}
	}
	_ = cc.Close()
	cc.once.Do(func() { close(cc.doneC) })
	<-doneW
	if cb.OnClose != nil {
		cb.OnClose()
	}
	logger.Info("link disconnected")
}
