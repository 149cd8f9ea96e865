package outbound

import (
	"context"
	"errors"
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
)

type fakeLink struct {
	id     string
	mu     sync.Mutex
	writes [][]byte
	err    error
	done   chan struct{}
}

func newFakeLink(id string) *fakeLink { return &fakeLink{id: id, done: make(chan struct{})} }

func (f *fakeLink) ID() string   { return f.id }
func (f *fakeLink) Kind() string { return link.KindSerial }
func (f *fakeLink) Close() error { return nil }

func (f *fakeLink) Done() <-chan struct{} { return f.done }

func (f *fakeLink) Write(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, append([]byte(nil), b...))
	return nil
}

func (f *fakeLink) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

func resolverFor(links ...*fakeLink) LinkResolver {
	return func(id string) (link.Link, bool) {
		for _, l := range links {
			if l.id == id {
				return l, true
			}
		}
		return nil, false
	}
}

func TestDispatcher_SubmitEncodes(t *testing.T) {
	l := newFakeLink("bench")
	d := New(resolverFor(l), Options{Rate: 1000}, nil, nil, nil)

	c, err := d.Submit("bench", m600.ModuleUltrasound, m600.CmdGetStatus, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, PriorityNormal, c.Priority)
	want, err := m600.EncodeCommand(m600.ModuleUltrasound, m600.CmdGetStatus, nil)
	require.NoError(t, err)
	assert.Equal(t, want, c.Frame)
	assert.Equal(t, 1, d.Len())

	_, err = d.Submit("missing", m600.ModuleUltrasound, m600.CmdGetStatus, nil)
	assert.ErrorIs(t, err, ErrLinkOffline)

	_, err = d.Submit("bench", m600.ModuleShockwave, m600.CmdSetConfig, nil)
	assert.ErrorIs(t, err, m600.ErrNoSchema)
}

func TestDispatcher_PriorityOrder(t *testing.T) {
	l := newFakeLink("bench")
	reg := prometheus.NewRegistry()
	m := metrics.NewAppMetrics(reg)
	d := New(resolverFor(l), Options{Rate: 1000, Burst: 10}, nil, m, nil)

	var mu sync.Mutex
	var results []Result
	d.OnResult(func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	// 先入队，再启动调度：热疗的停止命令排在超声查询与启动之前
	_, err := d.Submit("bench", m600.ModuleUltrasound, m600.CmdGetStatus, nil)
	require.NoError(t, err)
	_, err = d.Submit("bench", m600.ModuleUltrasound, m600.CmdSetWorkState, map[string]int{"work_state": 1})
	require.NoError(t, err)
	stop, err := d.Submit("bench", m600.ModuleHeat, m600.CmdSetWorkState, map[string]int{"work_state": 0})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { d.Run(ctx); close(done) }()

	require.Eventually(t, func() bool { return len(l.written()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	w := l.written()
	assert.Equal(t, stop.Frame, w[0])
	assert.Equal(t, byte(m600.CmdSetWorkState), w[1][4])
	assert.Equal(t, byte(m600.ModuleUltrasound), w[1][3])
	assert.Equal(t, byte(m600.CmdGetStatus), w[2][4])

	mu.Lock()
	require.Len(t, results, 3)
	assert.Equal(t, ResultSent, results[0].Status)
	mu.Unlock()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsSent.WithLabelValues("heat", m600.CmdSetWorkState.String(), ResultSent)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OutboundQueueLen))
}

func TestDispatcher_StopSupersedesQueuedStart(t *testing.T) {
	l := newFakeLink("bench")
	d := New(resolverFor(l), Options{Rate: 1000, Burst: 10}, nil, nil, nil)

	var mu sync.Mutex
	byID := make(map[string]Result)
	d.OnResult(func(r Result) {
		mu.Lock()
		byID[r.Command.ID] = r
		mu.Unlock()
	})

	// 同一模块先启动后停止：启动被取代，设备最后收到的是停止
	query, err := d.Submit("bench", m600.ModuleHeat, m600.CmdGetStatus, nil)
	require.NoError(t, err)
	start, err := d.Submit("bench", m600.ModuleHeat, m600.CmdSetWorkState, map[string]int{"work_state": 1})
	require.NoError(t, err)
	other, err := d.Submit("bench", m600.ModuleUltrasound, m600.CmdSetWorkState, map[string]int{"work_state": 1})
	require.NoError(t, err)
	stop, err := d.Submit("bench", m600.ModuleHeat, m600.CmdSetWorkState, map[string]int{"work_state": 0})
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())

	mu.Lock()
	r, ok := byID[start.ID]
	mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, ResultDropped, r.Status)
	assert.ErrorIs(t, r.Err, ErrSuperseded)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { d.Run(ctx); close(done) }()
	require.Eventually(t, func() bool { return len(l.written()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	w := l.written()
	assert.Equal(t, [][]byte{stop.Frame, other.Frame, query.Frame}, w)
	for _, f := range w {
		assert.NotEqual(t, start.Frame, f)
	}
}

func TestDispatcher_ControlOrderPerModule(t *testing.T) {
	l := newFakeLink("bench")
	d := New(resolverFor(l), Options{Rate: 1000, Burst: 10}, nil, nil, nil)

	// 先配置后启动：启动不能越过同模块更早提交的配置
	cfg, err := d.Submit("bench", m600.ModuleHeat, m600.CmdSetConfig, map[string]int{"work_time": 20})
	require.NoError(t, err)
	start, err := d.Submit("bench", m600.ModuleHeat, m600.CmdSetWorkState, map[string]int{"work_state": 1})
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, cfg.Priority)
	assert.Equal(t, PriorityHigh, start.Priority)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { d.Run(ctx); close(done) }()
	require.Eventually(t, func() bool { return len(l.written()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, [][]byte{cfg.Frame, start.Frame}, l.written())
}

func TestDispatcher_WriteFailure(t *testing.T) {
	l := newFakeLink("bench")
	l.err = errors.New("io error")
	d := New(resolverFor(l), Options{Rate: 1000}, nil, nil, nil)

	got := make(chan Result, 1)
	d.OnResult(func(r Result) { got <- r })
	_, err := d.Submit("bench", m600.ModuleUltrasound, m600.CmdGetStatus, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case r := <-got:
		assert.Equal(t, ResultFailed, r.Status)
		assert.EqualError(t, r.Err, "io error")
	case <-time.After(time.Second):
		t.Fatal("no result")
	}
}

func TestDispatcher_QueueFullAndStop(t *testing.T) {
	l := newFakeLink("bench")
	d := New(resolverFor(l), Options{Rate: 1000, QueueSize: 1}, nil, nil, nil)

	_, err := d.Submit("bench", m600.ModuleUltrasound, m600.CmdGetStatus, nil)
	require.NoError(t, err)
	_, err = d.Submit("bench", m600.ModuleUltrasound, m600.CmdGetStatus, nil)
	assert.ErrorIs(t, err, ErrQueueFull)

	var dropped int
	d.OnResult(func(r Result) {
		if r.Status == ResultDropped {
			dropped++
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.Run(ctx)

	assert.Equal(t, 1, dropped)
	assert.Empty(t, l.written())
	_, err = d.Submit("bench", m600.ModuleUltrasound, m600.CmdGetStatus, nil)
	assert.ErrorIs(t, err, ErrStopped)
}

func TestDispatcher_WriteDelay(t *testing.T) {
	l := newFakeLink("bench")
	d := New(resolverFor(l), Options{Rate: 1000, Burst: 10, WriteDelay: 30 * time.Millisecond}, nil, nil, nil)
	for i := 0; i < 3; i++ {
		_, err := d.Submit("bench", m600.ModuleUltrasound, m600.CmdGetStatus, nil)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	start := time.Now()
	go d.Run(ctx)
	require.Eventually(t, func() bool { return len(l.written()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}
