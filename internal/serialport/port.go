package serialport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/m600-assistant/internal/config"
	"github.com/taoyao-code/m600-assistant/internal/link"
)

// device 串口设备的最小读写面（serial.Port 满足该接口）
type device interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
}

// Opener 打开串口设备
type Opener func(path string, baud int, readTimeout time.Duration) (device, error)

// OpenDevice 以 8N1 打开串口
func OpenDevice(path string, baud int, readTimeout time.Duration) (device, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", path, err)
	}
	if readTimeout <= 0 {
		readTimeout = 50 * time.Millisecond
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serial: set read timeout %s: %w", path, err)
	}
	return p, nil
}

// Port 本地串口链路：读协程 + 拔插后自动重开
type Port struct {
	cfg     cfgpkg.SerialPortConfig
	open    Opener
	breaker *link.Breaker
	logger  *zap.Logger

	mu  sync.Mutex // 保护 dev
	dev device

	writeMu sync.Mutex
	closed  atomic.Bool
	doneC   chan struct{}
	stopC   chan struct{}
	once    sync.Once

	reopenInterval time.Duration
}

// New 创建串口链路（不立即打开）
func New(cfg cfgpkg.SerialPortConfig, logger *zap.Logger) *Port {
	return newPort(cfg, OpenDevice, logger)
}

func newPort(cfg cfgpkg.SerialPortConfig, open Opener, logger *zap.Logger) *Port {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Port{
		cfg:            cfg,
		open:           open,
		breaker:        link.NewBreaker(3, 10*time.Second),
		logger:         logger.With(zap.String("link", cfg.LinkID()), zap.String("path", cfg.Path)),
		doneC:          make(chan struct{}),
		stopC:          make(chan struct{}),
		reopenInterval: time.Second,
	}
	p.breaker.OnStateChange(func(from, to link.State) {
		p.logger.Warn("serial reopen breaker state changed",
			zap.String("from", from.String()), zap.String("to", to.String()))
	})
	return p
}

func (p *Port) ID() string   { return p.cfg.LinkID() }
func (p *Port) Kind() string { return link.KindSerial }

// Done 链路关闭通知
func (p *Port) Done() <-chan struct{} { return p.doneC }

// Write 写入一帧（串口写为阻塞调用，按帧串行）
func (p *Port) Write(b []byte) error {
	if p.closed.Load() {
		return link.ErrClosed
	}
	p.mu.Lock()
	dev := p.dev
	p.mu.Unlock()
	if dev == nil {
		return fmt.Errorf("serial %s: not open", p.cfg.Path)
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := dev.Write(b)
	if err != nil {
		return fmt.Errorf("serial %s: write: %w", p.cfg.Path, err)
	}
	return nil
}

// Close 关闭链路，Run 随后退出
func (p *Port) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.stopC)
	return p.closeDevice()
}

func (p *Port) closeDevice() error {
	p.mu.Lock()
	dev := p.dev
	p.dev = nil
	p.mu.Unlock()
	if dev == nil {
		return nil
	}
	return dev.Close()
}

// Open 打开设备（受熔断器保护）
func (p *Port) Open() error {
	return p.breaker.Call(func() error {
		dev, err := p.open(p.cfg.Path, p.cfg.Baud, p.cfg.ReadTimeout)
		if err != nil {
			return err
		}
		// 丢弃打开前驱动缓冲的残留数据
		_ = dev.ResetInputBuffer()
		p.mu.Lock()
		p.dev = dev
		p.mu.Unlock()
		return nil
	})
}

// Run 读循环，阻塞直至 ctx 取消或 Close；读错误时关闭设备并周期性重开
func (p *Port) Run(ctx context.Context, h link.Handler) {
	defer p.once.Do(func() { close(p.doneC) })
	defer func() { _ = p.Close() }()

	cb := h(p)
	if cb.OnClose != nil {
		defer cb.OnClose()
	}

	buf := make([]byte, 1024)
	reopening := false
	for {
		if ctx.Err() != nil || p.closed.Load() {
			return
		}
		p.mu.Lock()
		dev := p.dev
		p.mu.Unlock()

		if dev == nil {
			if err := p.Open(); err != nil {
				if !errors.Is(err, link.ErrCircuitOpen) {
					p.logger.Warn("serial open failed", zap.Error(err))
				}
				if !p.sleep(ctx, p.reopenInterval) {
					return
				}
				continue
			}
			p.logger.Info("serial port opened", zap.Int("baud", p.cfg.Baud))
			if reopening {
				reopening = false
				if cb.OnReopen != nil {
					cb.OnReopen()
				}
			}
			continue
		}

		n, err := dev.Read(buf)
		if n > 0 && cb.OnData != nil {
			cb.OnData(buf[:n])
		}
		if err != nil {
			if p.closed.Load() {
				return
			}
			p.logger.Warn("serial read failed, reopening", zap.Error(err))
			_ = p.closeDevice()
			reopening = true
		}
		// n == 0 && err == nil：读超时，继续
	}
}

func (p *Port) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-p.stopC:
		return false
	case <-t.C:
		return true
	}
}
