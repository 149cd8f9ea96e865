package m600

import "sync"

// Handler 记录处理器
type Handler func(r *Record) error

type routeKey struct {
	mod Module
	cmd Command
}

// Table 路由表（module+cmd -> handler）
type Table struct {
	mu       sync.RWMutex
	handlers map[routeKey]Handler
	fallback Handler
}

func NewTable() *Table { return &Table{handlers: make(map[routeKey]Handler)} }

func (t *Table) Register(module Module, cmd Command, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[routeKey{module, cmd}] = h
}

// SetFallback 未注册的模块/命令交给兜底处理器
func (t *Table) SetFallback(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fallback = h
}

func (t *Table) Route(r *Record) error {
	t.mu.RLock()
	h := t.handlers[routeKey{r.Module, r.Cmd}]
	if h == nil {
		h = t.fallback
	}
	t.mu.RUnlock()
	if h == nil {
		return nil
	}
	return h(r)
}
