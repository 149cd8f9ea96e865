package storage

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/m600-assistant/internal/storage/models"
)

// Journal 异步帧日志：链路读协程只投递，后台协程写库
// 队列满时丢弃并计数，不阻塞串口读取。
type Journal struct {
	frames    FrameWriter
	snapshots HistoryRepo
	logger    *zap.Logger

	frameC    chan *models.FrameLog
	snapshotC chan *models.StatusSnapshot
	dropped   atomic.Int64
	written   atomic.Int64
	timeout   time.Duration
}

// NewJournal frames/snapshots 任一为 nil 时对应写入被跳过
func NewJournal(frames FrameWriter, snapshots HistoryRepo, size int, logger *zap.Logger) *Journal {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{
		frames:    frames,
		snapshots: snapshots,
		logger:    logger.Named("journal"),
		frameC:    make(chan *models.FrameLog, size),
		snapshotC: make(chan *models.StatusSnapshot, size),
		timeout:   3 * time.Second,
	}
}

// Frame 投递帧日志
func (j *Journal) Frame(l *models.FrameLog) {
	if j == nil || j.frames == nil {
		return
	}
	select {
	case j.frameC <- l:
	default:
		j.dropped.Add(1)
	}
}

// Snapshot 投递状态快照
func (j *Journal) Snapshot(s *models.StatusSnapshot) {
	if j == nil || j.snapshots == nil {
		return
	}
	select {
	case j.snapshotC <- s:
	default:
		j.dropped.Add(1)
	}
}

// Dropped 因队列满丢弃的条数
func (j *Journal) Dropped() int64 {
	if j == nil {
		return 0
	}
	return j.dropped.Load()
}

// Written 成功写入的条数
func (j *Journal) Written() int64 {
	if j == nil {
		return 0
	}
	return j.written.Load()
}

// Run 写库循环，ctx 取消后写完队列中已有的条目再返回
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case l := <-j.frameC:
			j.writeFrame(l)
		case s := <-j.snapshotC:
			j.writeSnapshot(s)
		case <-ctx.Done():
			j.flush()
			return
		}
	}
}

func (j *Journal) flush() {
	for {
		select {
		case l := <-j.frameC:
			j.writeFrame(l)
		case s := <-j.snapshotC:
			j.writeSnapshot(s)
		default:
			return
		}
	}
}

func (j *Journal) writeFrame(l *models.FrameLog) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if _, err := j.frames.InsertFrameLog(ctx, l); err != nil {
		j.logger.Warn("insert frame log failed", zap.String("link", l.LinkID), zap.Error(err))
		return
	}
	j.written.Add(1)
}

func (j *Journal) writeSnapshot(s *models.StatusSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if err := j.snapshots.UpsertSnapshot(ctx, s); err != nil {
		j.logger.Warn("upsert status snapshot failed", zap.String("link", s.LinkID), zap.Error(err))
		return
	}
	j.written.Add(1)
}
