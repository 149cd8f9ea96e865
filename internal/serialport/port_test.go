package serialport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/m600-assistant/internal/config"
	"github.com/taoyao-code/m600-assistant/internal/link"
)

// fakeDevice 内存串口：rx 通道模拟设备上行，写入内容记录在 tx
type fakeDevice struct {
	rx     chan []byte
	mu     sync.Mutex
	tx     bytes.Buffer
	closed chan struct{}
	once   sync.Once
	failOn int32 // >0 时第 N 次读取返回错误
	reads  atomic.Int32
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{rx: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeDevice) Read(p []byte) (int, error) {
	if n := f.reads.Add(1); f.failOn > 0 && n >= f.failOn {
		return 0, errors.New("device unplugged")
	}
	select {
	case b := <-f.rx:
		return copy(p, b), nil
	case <-f.closed:
		return 0, io.EOF
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func (f *fakeDevice) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tx.Write(p)
}

func (f *fakeDevice) Written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.tx.Bytes()...)
}

func (f *fakeDevice) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeDevice) ResetInputBuffer() error { return nil }

type collector struct {
	mu     sync.Mutex
	data   []byte
	closed atomic.Bool
}

func (c *collector) handler(l link.Link) link.Callbacks {
	return link.Callbacks{
		OnData: func(p []byte) {
			c.mu.Lock()
			c.data = append(c.data, p...)
			c.mu.Unlock()
		},
		OnClose: func() { c.closed.Store(true) },
	}
}

func (c *collector) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.data...)
}

var benchCfg = cfgpkg.SerialPortConfig{Name: "bench", Path: "/dev/ttyFAKE0", Baud: 115200}

func TestPort_ReadWriteClose(t *testing.T) {
	dev := newFakeDevice()
	p := newPort(benchCfg, func(string, int, time.Duration) (device, error) { return dev, nil }, nil)
	assert.Equal(t, "bench", p.ID())
	assert.Equal(t, link.KindSerial, p.Kind())

	c := &collector{}
	go p.Run(context.Background(), c.handler)

	dev.rx <- []byte{0x5A, 0xA5}
	dev.rx <- []byte{0x01}
	require.Eventually(t, func() bool { return len(c.bytes()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte{0x5A, 0xA5, 0x01}, c.bytes())

	require.NoError(t, p.Write([]byte{0x5A, 0xA5, 0x00}))
	assert.Equal(t, []byte{0x5A, 0xA5, 0x00}, dev.Written())

	require.NoError(t, p.Close())
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after Close")
	}
	assert.True(t, c.closed.Load())
	assert.ErrorIs(t, p.Write([]byte{0x00}), link.ErrClosed)
}

func TestPort_ReopenAfterReadError(t *testing.T) {
	first := newFakeDevice()
	first.failOn = 2
	second := newFakeDevice()
	var opens atomic.Int32
	p := newPort(benchCfg, func(string, int, time.Duration) (device, error) {
		if opens.Add(1) == 1 {
			return first, nil
		}
		return second, nil
	}, nil)
	p.reopenInterval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first.rx <- []byte{0x01}
	c := &collector{}
	go p.Run(ctx, c.handler)

	require.Eventually(t, func() bool { return opens.Load() == 2 }, time.Second, 5*time.Millisecond)
	second.rx <- []byte{0x02}
	require.Eventually(t, func() bool { return len(c.bytes()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte{0x01, 0x02}, c.bytes())

	cancel()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}

func TestPort_OpenFailureTripsBreaker(t *testing.T) {
	var opens atomic.Int32
	p := newPort(benchCfg, func(string, int, time.Duration) (device, error) {
		opens.Add(1)
		return nil, errors.New("no such device")
	}, nil)

	for i := 0; i < 3; i++ {
		assert.Error(t, p.Open())
	}
	assert.ErrorIs(t, p.Open(), link.ErrCircuitOpen)
	assert.Equal(t, int32(3), opens.Load())
	assert.Error(t, p.Write([]byte{0x00}))
}

func TestPort_ReopenNotifiesBeforeNextRead(t *testing.T) {
	first := newFakeDevice()
	first.failOn = 2
	second := newFakeDevice()
	var opens atomic.Int32
	p := newPort(benchCfg, func(string, int, time.Duration) (device, error) {
		if opens.Add(1) == 1 {
			return first, nil
		}
		return second, nil
	}, nil)
	p.reopenInterval = 5 * time.Millisecond

	var mu sync.Mutex
	var events []string
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	snapshot := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), events...)
	}

	// 首次打开不触发；读错误重开后先通知，再交付新设备的数据
	first.rx <- []byte{0x5A}
	second.rx <- []byte{0xA5}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx, func(link.Link) link.Callbacks {
		return link.Callbacks{
			OnData:   func(b []byte) { record("data") },
			OnReopen: func() { record("reopen") },
		}
	})

	require.Eventually(t, func() bool { return len(snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"data", "reopen", "data"}, snapshot())

	cancel()
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after cancel")
	}
}
