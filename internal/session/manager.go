package session

import (
	"sort"
	"sync"
	"time"

	"github.com/taoyao-code/m600-assistant/internal/link"
	"github.com/taoyao-code/m600-assistant/internal/protocol/m600"
)

// LinkInfo 链路状态快照
type LinkInfo struct {
	ID          string           `json:"id"`
	Kind        string           `json:"kind"`
	ConnectedAt time.Time        `json:"connected_at"`
	LastFrameAt *time.Time       `json:"last_frame_at,omitempty"`
	Online      bool             `json:"online"`
	Frames      uint64           `json:"frames"`
	Stream      m600.StreamStats `json:"stream"`
}

type entry struct {
	link        link.Link
	connectedAt time.Time
	lastSeen    time.Time
	frames      uint64
	stream      m600.StreamStats
	latest      map[recordKey]*m600.Record
}

// recordKey 最新记录按模块+命令区分，配置应答不覆盖状态查询
type recordKey struct {
	module m600.Module
	cmd    m600.Command
}

// Manager 链路会话：绑定关系、最近上行时间、各模块最新记录
// 在线判定以最近一次有效帧为准，仅有连接没有帧视为离线。
type Manager struct {
	mu      sync.RWMutex
	links   map[string]*entry
	timeout time.Duration
}

func New(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Manager{links: make(map[string]*entry), timeout: timeout}
}

// Bind 绑定链路，重复绑定将覆盖（串口重开、DTU 重连）
func (m *Manager) Bind(l link.Link, now time.Time) {
	m.mu.Lock()
	m.links[l.ID()] = &entry{link: l, connectedAt: now, latest: make(map[recordKey]*m600.Record)}
	m.mu.Unlock()
}

// Unbind 解除绑定；l 不是当前绑定的链路时忽略（旧连接晚于新连接关闭）
func (m *Manager) Unbind(id string, l link.Link) {
	m.mu.Lock()
	if e, ok := m.links[id]; ok && e.link == l {
		delete(m.links, id)
	}
	m.mu.Unlock()
}

// GetConn 返回绑定的链路
func (m *Manager) GetConn(id string) (link.Link, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.links[id]
	if !ok {
		return nil, false
	}
	return e.link, true
}

// OnFrame 记录一条上行记录
func (m *Manager) OnFrame(id string, r *m600.Record, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.links[id]
	if !ok {
		return
	}
	e.lastSeen = now
	e.frames++
	if r != nil && len(r.Values) > 0 {
		e.latest[recordKey{r.Module, r.Cmd}] = r
	}
}

// UpdateStream 保存流式解码诊断计数
func (m *Manager) UpdateStream(id string, st m600.StreamStats) {
	m.mu.Lock()
	if e, ok := m.links[id]; ok {
		e.stream = st
	}
	m.mu.Unlock()
}

// Latest 各模块各命令最新记录（按模块ID、命令码排序）
func (m *Manager) Latest(id string) []*m600.Record {
	m.mu.RLock()
	e, ok := m.links[id]
	if !ok {
		m.mu.RUnlock()
		return nil
	}
	out := make([]*m600.Record, 0, len(e.latest))
	for _, r := range e.latest {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Cmd < out[j].Cmd
	})
	return out
}

func (m *Manager) online(e *entry, now time.Time) bool {
	return !e.lastSeen.IsZero() && now.Sub(e.lastSeen) <= m.timeout
}

// IsOnline 判断链路是否在线
func (m *Manager) IsOnline(id string, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.links[id]
	return ok && m.online(e, now)
}

// OnlineCount 返回当前在线链路数量
func (m *Manager) OnlineCount(now time.Time) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, e := range m.links {
		if m.online(e, now) {
			count++
		}
	}
	return count
}

// Links 全部已绑定链路（按ID排序）
func (m *Manager) Links(now time.Time) []LinkInfo {
	m.mu.RLock()
	out := make([]LinkInfo, 0, len(m.links))
	for id, e := range m.links {
		info := LinkInfo{
			ID:          id,
			Kind:        e.link.Kind(),
			ConnectedAt: e.connectedAt,
			Online:      m.online(e, now),
			Frames:      e.frames,
			Stream:      e.stream,
		}
		if !e.lastSeen.IsZero() {
			ts := e.lastSeen
			info.LastFrameAt = &ts
		}
		out = append(out, info)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
