package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/m600-assistant/internal/link"
	"github.com/taoyao-code/m600-assistant/internal/metrics"
	"github.com/taoyao-code/m600-assistant/internal/protocol/m600"
	"github.com/taoyao-code/m600-assistant/internal/session"
	redisstore "github.com/taoyao-code/m600-assistant/internal/storage/redis"
)

type stubLink struct {
	id   string
	done chan struct{}
}

func (s *stubLink) ID() string            { return s.id }
func (s *stubLink) Kind() string          { return link.KindSerial }
func (s *stubLink) Write([]byte) error    { return nil }
func (s *stubLink) Close() error          { return nil }
func (s *stubLink) Done() <-chan struct{} { return s.done }

type recordingHub struct {
	mu     sync.Mutex
	events []RecordEvent
}

func (h *recordingHub) Broadcast(_ string, v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, v.(RecordEvent))
}

type cacheKey struct{ module, command uint8 }

type memCache struct {
	mu  sync.Mutex
	set map[cacheKey]*redisstore.CachedStatus
}

func (c *memCache) Set(_ context.Context, s *redisstore.CachedStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set[cacheKey{s.Module, s.Command}] = s
	return nil
}

// 超声状态：启动 1200kHz 上限40.0℃ 剩余60s 等级10 探头36.0℃ 已连接 无错误
var usStatus = []byte{0x01, 0xB0, 0x04, 0x90, 0x01, 0x3C, 0x00, 0x0A, 0x68, 0x01, 0x00, 0x00}

func mustFrame(t *testing.T, dir m600.Direction, mod m600.Module, cmd m600.Command, payload []byte) []byte {
	t.Helper()
	b, err := m600.Build(dir, mod, cmd, payload)
	require.NoError(t, err)
	return b
}

type fixture struct {
	sess  *session.Manager
	hub   *recordingHub
	cache *memCache
	m     *metrics.AppMetrics
	l     *stubLink
	cb    link.Callbacks
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sess:  session.New(10 * time.Second),
		hub:   &recordingHub{},
		cache: &memCache{set: map[cacheKey]*redisstore.CachedStatus{}},
		m:     metrics.NewAppMetrics(prometheus.NewRegistry()),
		l:     &stubLink{id: "bench", done: make(chan struct{})},
	}
	h := NewLinkHandler(Deps{Session: f.sess, Metrics: f.m, Hub: f.hub, Cache: f.cache})
	f.cb = h(f.l)
	return f
}

func TestLinkHandler_StatusRecord(t *testing.T) {
	f := newFixture(t)
	_, bound := f.sess.GetConn("bench")
	require.True(t, bound)
	assert.False(t, f.sess.IsOnline("bench", time.Now()), "仅有连接没有帧视为离线")

	frame := mustFrame(t, m600.DirDeviceToHost, m600.ModuleUltrasound, m600.CmdGetStatus, usStatus)
	// 前导噪声 + 分两段到达
	f.cb.OnData(append([]byte{0x00, 0x11}, frame[:5]...))
	f.cb.OnData(frame[5:])

	assert.True(t, f.sess.IsOnline("bench", time.Now()))
	latest := f.sess.Latest("bench")
	require.Len(t, latest, 1)
	v, ok := latest[0].Get("head_temp")
	require.True(t, ok)
	assert.Equal(t, "36.0℃", v.String())

	require.Len(t, f.hub.events, 1)
	assert.Equal(t, "ultrasound", f.hub.events[0].Module)
	assert.Contains(t, f.hub.events[0].Summary, "work_state=start")

	cached := f.cache.set[cacheKey{uint8(m600.ModuleUltrasound), uint8(m600.CmdGetStatus)}]
	require.NotNil(t, cached)
	assert.Equal(t, "1200kHz", cached.Fields["frequency"])

	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.FramesDecoded.WithLabelValues("ultrasound", m600.CmdGetStatus.String())))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.m.StreamDiscard.WithLabelValues("bench", metrics.DiscardNoise)))
	assert.Equal(t, float64(len(frame)+2), testutil.ToFloat64(f.m.BytesReceived.WithLabelValues("bench")))
}

func TestLinkHandler_ConfigAckKeepsStatus(t *testing.T) {
	f := newFixture(t)
	status := mustFrame(t, m600.DirDeviceToHost, m600.ModuleUltrasound, m600.CmdGetStatus, usStatus)
	// 频率、电压、温度上限均设置成功
	ack := mustFrame(t, m600.DirDeviceToHost, m600.ModuleUltrasound, m600.CmdSetConfig, []byte{0x00, 0x00, 0x00})
	f.cb.OnData(status)
	f.cb.OnData(ack)

	latest := f.sess.Latest("bench")
	require.Len(t, latest, 2)
	assert.Equal(t, m600.CmdGetStatus, latest[0].Cmd)
	v, ok := latest[0].Get("head_temp")
	require.True(t, ok)
	assert.Equal(t, "36.0℃", v.String())
	assert.Equal(t, m600.CmdSetConfig, latest[1].Cmd)

	require.Len(t, f.cache.set, 2)
	assert.Equal(t, "1200kHz", f.cache.set[cacheKey{1, 0}].Fields["frequency"])
	assert.Contains(t, f.cache.set[cacheKey{1, 2}].Fields, "freq_result")
}

func TestLinkHandler_RawAndDecodeError(t *testing.T) {
	f := newFixture(t)

	// 设置工作状态的应答没有字段表：仅原始数据，不缓存
	ack := mustFrame(t, m600.DirDeviceToHost, m600.ModuleHeat, m600.CmdSetWorkState, []byte{0x00})
	// 数据区过短
	short := mustFrame(t, m600.DirDeviceToHost, m600.ModuleUltrasound, m600.CmdGetStatus, []byte{0x01, 0x02})
	f.cb.OnData(append(ack, short...))

	require.Len(t, f.hub.events, 1)
	assert.Empty(t, f.hub.events[0].Record.Values)
	assert.Empty(t, f.cache.set)
	assert.Empty(t, f.sess.Latest("bench"))
	assert.True(t, f.sess.IsOnline("bench", time.Now()))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.DecodeErrors.WithLabelValues("ultrasound", m600.CmdGetStatus.String())))
}

func TestLinkHandler_CRCResync(t *testing.T) {
	f := newFixture(t)
	bad := mustFrame(t, m600.DirDeviceToHost, m600.ModuleUltrasound, m600.CmdGetStatus, usStatus)
	bad[len(bad)-1] ^= 0xFF
	good := mustFrame(t, m600.DirDeviceToHost, m600.ModuleUltrasound, m600.CmdGetStatus, usStatus)
	f.cb.OnData(append(bad, good...))

	require.Len(t, f.hub.events, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.StreamDiscard.WithLabelValues("bench", metrics.DiscardCRC)))
	infos := f.sess.Links(time.Now())
	require.Len(t, infos, 1)
	assert.Equal(t, uint64(1), infos[0].Stream.CRCErrors)
}

func TestLinkHandler_ReopenDropsPartialFrame(t *testing.T) {
	f := newFixture(t)
	require.NotNil(t, f.cb.OnReopen)
	frame := mustFrame(t, m600.DirDeviceToHost, m600.ModuleUltrasound, m600.CmdGetStatus, usStatus)

	// 旧设备只送达半帧，重开后新设备送来完整帧
	f.cb.OnData(frame[:8])
	f.cb.OnReopen()
	f.cb.OnData(frame)

	require.Len(t, f.hub.events, 1)
	require.Len(t, f.sess.Latest("bench"), 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.m.StreamDiscard.WithLabelValues("bench", metrics.DiscardCRC)))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.m.StreamDiscard.WithLabelValues("bench", metrics.DiscardFalseHeader)))
	infos := f.sess.Links(time.Now())
	require.Len(t, infos, 1)
	assert.Equal(t, uint64(0), infos[0].Stream.CRCErrors)
}

func TestLinkHandler_Close(t *testing.T) {
	f := newFixture(t)
	f.cb.OnClose()
	_, bound := f.sess.GetConn("bench")
	assert.False(t, bound)
}

func TestDecodeErrors(t *testing.T) {
	assert.Nil(t, decodeErrors(nil))
	short := mustFrame(t, m600.DirDeviceToHost, m600.ModuleUltrasound, m600.CmdGetStatus, []byte{0x01})
	ad := m600.NewAdapter()
	err := ad.ProcessBytes(append(short, short...))
	require.Error(t, err)
	assert.Len(t, decodeErrors(err), 2)
}
