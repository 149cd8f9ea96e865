package outbound

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/taoyao-code/m600-assistant/internal/link"
	"github.com/taoyao-code/m600-assistant/internal/metrics"
	"github.com/taoyao-code/m600-assistant/internal/protocol/m600"
	"github.com/taoyao-code/m600-assistant/internal/storage"
	"github.com/taoyao-code/m600-assistant/internal/storage/models"
)

var (
	ErrQueueFull   = errors.New("outbound queue full")
	ErrLinkOffline = errors.New("link not connected")
	ErrStopped     = errors.New("dispatcher stopped")
	ErrSuperseded  = errors.New("superseded by stop command")
)

// 命令结果
const (
	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
)

// Command 一条待下发的命令
type Command struct {
	ID        string         `json:"id"`
	LinkID    string         `json:"link_id"`
	Module    m600.Module    `json:"module"`
	Cmd       m600.Command   `json:"command"`
	Fields    map[string]int `json:"fields,omitempty"`
	Frame     []byte         `json:"-"`
	Priority  int            `json:"priority"`
	CreatedAt time.Time      `json:"created_at"`

	payload []byte
	rank    int // 出队用优先级，可被同模块后续控制命令提升
	seq     uint64
}

// Result 下发结果
type Result struct {
	Command *Command
	Status  string
	Err     error
	At      time.Time
}

// LinkResolver 按链路ID查找当前绑定的链路
type LinkResolver func(id string) (link.Link, bool)

// Options 调度参数
type Options struct {
	Rate       float64       // 每条链路每秒写入帧数
	Burst      int
	QueueSize  int
	WriteDelay time.Duration // 同一链路两帧最小间隔
}

// Dispatcher 单协程下行调度：按优先级出队，按链路限速写入
// 只写一次，不等待应答也不重发；应答作为普通上行帧进入网关。
type Dispatcher struct {
	resolve LinkResolver
	opts    Options
	logger  *zap.Logger
	metrics *metrics.AppMetrics
	journal *storage.Journal

	mu       sync.Mutex
	queue    commandHeap
	seq      uint64
	stopped  bool
	limiters map[string]*rate.Limiter
	lastSent map[string]time.Time
	notify   chan struct{}
	onResult func(Result)
}

// New 创建调度器；metrics、journal 可为 nil
func New(resolve LinkResolver, opts Options, logger *zap.Logger, m *metrics.AppMetrics, j *storage.Journal) *Dispatcher {
	if opts.Rate <= 0 {
		opts.Rate = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		resolve:  resolve,
		opts:     opts,
		logger:   logger.Named("outbound"),
		metrics:  m,
		journal:  j,
		limiters: make(map[string]*rate.Limiter),
		lastSent: make(map[string]time.Time),
		notify:   make(chan struct{}, 1),
	}
}

// OnResult 安装结果回调（在调度协程中同步调用；被停止命令取代的命令在 Submit 中回调）
func (d *Dispatcher) OnResult(fn func(Result)) { d.onResult = fn }

// Submit 编码并入队，返回带ID与帧字节的命令
func (d *Dispatcher) Submit(linkID string, module m600.Module, cmd m600.Command, fields map[string]int) (*Command, error) {
	payload, err := m600.EncodePayload(module, cmd, fields)
	if err != nil {
		return nil, err
	}
	frame, err := m600.Build(m600.DirHostToDevice, module, cmd, payload)
	if err != nil {
		return nil, err
	}
	if _, ok := d.resolve(linkID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrLinkOffline, linkID)
	}
	c := &Command{
		ID:        uuid.NewString(),
		LinkID:    linkID,
		Module:    module,
		Cmd:       cmd,
		Fields:    fields,
		Frame:     frame,
		payload:   payload,
		Priority:  CommandPriority(cmd, fields),
		CreatedAt: time.Now(),
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil, ErrStopped
	}
	c.rank = c.Priority
	superseded := d.reorderLocked(c)
	if d.queue.Len() >= d.opts.QueueSize {
		d.mu.Unlock()
		d.count(c, ResultDropped)
		d.dropAll(superseded, ErrSuperseded)
		return nil, ErrQueueFull
	}
	d.seq++
	c.seq = d.seq
	heap.Push(&d.queue, c)
	n := d.queue.Len()
	d.mu.Unlock()

	d.setQueueLen(n)
	d.dropAll(superseded, ErrSuperseded)
	select {
	case d.notify <- struct{}{}:
	default:
	}
	return c, nil
}

// reorderLocked 保证同一链路同一模块的控制命令按提交顺序生效：
// 停止/复位移除队列中尚未发出的控制命令；其余控制命令把排队中的
// 同模块控制命令提升到不低于自身的优先级。调用方持有 d.mu。
func (d *Dispatcher) reorderLocked(c *Command) []*Command {
	if !isControl(c.Cmd) {
		return nil
	}
	var removed []*Command
	kept := d.queue[:0]
	for _, q := range d.queue {
		if q.LinkID != c.LinkID || q.Module != c.Module || !isControl(q.Cmd) {
			kept = append(kept, q)
			continue
		}
		if c.Priority == PriorityEmergency {
			removed = append(removed, q)
			continue
		}
		if q.rank > c.rank {
			q.rank = c.rank
		}
		kept = append(kept, q)
	}
	for i := len(kept); i < len(d.queue); i++ {
		d.queue[i] = nil
	}
	d.queue = kept
	heap.Init(&d.queue)
	return removed
}

func (d *Dispatcher) dropAll(cs []*Command, err error) {
	for _, c := range cs {
		d.finish(c, ResultDropped, err)
	}
}

func isControl(cmd m600.Command) bool {
	return cmd == m600.CmdSetWorkState || cmd == m600.CmdSetConfig
}

// Len 待发命令数
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Len()
}

// Run 调度循环，ctx 取消后丢弃未发命令
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.stop()
	for {
		c := d.pop()
		if c == nil {
			select {
			case <-ctx.Done():
				return
			case <-d.notify:
				continue
			}
		}
		if err := d.pace(ctx, c.LinkID); err != nil {
			d.finish(c, ResultDropped, err)
			return
		}
		d.send(c)
	}
}

func (d *Dispatcher) pop() *Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queue.Len() == 0 {
		return nil
	}
	c := heap.Pop(&d.queue).(*Command)
	d.setQueueLen(d.queue.Len())
	return c
}

// pace 等待链路令牌并保证最小帧间隔
func (d *Dispatcher) pace(ctx context.Context, linkID string) error {
	lim, ok := d.limiters[linkID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(d.opts.Rate), d.opts.Burst)
		d.limiters[linkID] = lim
	}
	if err := lim.Wait(ctx); err != nil {
		return err
	}
	if d.opts.WriteDelay > 0 {
		if wait := time.Until(d.lastSent[linkID].Add(d.opts.WriteDelay)); wait > 0 {
			t := time.NewTimer(wait)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return nil
}

func (d *Dispatcher) send(c *Command) {
	l, ok := d.resolve(c.LinkID)
	if !ok {
		d.finish(c, ResultFailed, fmt.Errorf("%w: %s", ErrLinkOffline, c.LinkID))
		return
	}
	if err := l.Write(c.Frame); err != nil {
		d.finish(c, ResultFailed, err)
		return
	}
	d.lastSent[c.LinkID] = time.Now()
	d.finish(c, ResultSent, nil)
}

func (d *Dispatcher) finish(c *Command, status string, err error) {
	now := time.Now()
	if err != nil {
		d.logger.Warn("command not sent",
			zap.String("id", c.ID),
			zap.String("link", c.LinkID),
			zap.Stringer("module", c.Module),
			zap.Stringer("cmd", c.Cmd),
			zap.String("result", status),
			zap.Error(err))
	} else {
		d.logger.Info("command sent",
			zap.String("id", c.ID),
			zap.String("link", c.LinkID),
			zap.Stringer("module", c.Module),
			zap.Stringer("cmd", c.Cmd),
			zap.String("frame", m600.HexDump(c.Frame)))
	}
	d.count(c, status)
	if status != ResultDropped {
		d.journalFrame(c, status, now)
	}
	if d.onResult != nil {
		d.onResult(Result{Command: c, Status: status, Err: err, At: now})
	}
}

func (d *Dispatcher) journalFrame(c *Command, status string, at time.Time) {
	if d.journal == nil {
		return
	}
	id := c.ID
	d.journal.Frame(&models.FrameLog{
		LinkID:    c.LinkID,
		Direction: models.DirectionDown,
		Module:    int16(c.Module),
		Command:   int16(c.Cmd),
		Payload:   c.payload,
		Raw:       m600.HexDump(c.Frame),
		CommandID: &id,
		Result:    status,
		CreatedAt: at,
	})
}

func (d *Dispatcher) count(c *Command, status string) {
	if d.metrics == nil {
		return
	}
	d.metrics.CommandsSent.WithLabelValues(c.Module.String(), c.Cmd.String(), status).Inc()
}

func (d *Dispatcher) setQueueLen(n int) {
	if d.metrics == nil {
		return
	}
	d.metrics.OutboundQueueLen.Set(float64(n))
}

// stop 丢弃剩余命令
func (d *Dispatcher) stop() {
	d.mu.Lock()
	d.stopped = true
	rest := make([]*Command, 0, d.queue.Len())
	for d.queue.Len() > 0 {
		rest = append(rest, heap.Pop(&d.queue).(*Command))
	}
	d.mu.Unlock()
	d.setQueueLen(0)
	for _, c := range rest {
		d.finish(c, ResultDropped, ErrStopped)
	}
}

// commandHeap 优先级小顶堆，同优先级按入队顺序
type commandHeap []*Command

func (h commandHeap) Len() int { return len(h) }
func (h commandHeap) Less(i, j int) bool {
	if h[i].rank != h[j].rank {
		return h[i].rank < h[j].rank
	}
	return h[i].seq < h[j].seq
}
func (h commandHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *commandHeap) Push(x any)   { *h = append(*h, x.(*Command)) }
func (h *commandHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}
