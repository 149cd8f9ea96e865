package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/m600-assistant/internal/link"
	"github.com/taoyao-code/m600-assistant/internal/metrics"
	"github.com/taoyao-code/m600-assistant/internal/protocol/adapter"
	"github.com/taoyao-code/m600-assistant/internal/protocol/m600"
	"github.com/taoyao-code/m600-assistant/internal/session"
	"github.com/taoyao-code/m600-assistant/internal/storage"
	"github.com/taoyao-code/m600-assistant/internal/storage/models"
	redisstore "github.com/taoyao-code/m600-assistant/internal/storage/redis"
)

// Broadcaster 实时推送（websocket hub）
type Broadcaster interface {
	Broadcast(linkID string, v any)
}

// StatusCache 最新状态缓存（Redis）
type StatusCache interface {
	Set(ctx context.Context, s *redisstore.CachedStatus) error
}

// RecordEvent 推送给订阅者的一条上行记录
type RecordEvent struct {
	Link    string       `json:"link"`
	Module  string       `json:"module"`
	Command string       `json:"command"`
	Summary string       `json:"summary"`
	Record  *m600.Record `json:"record"`
}

// Deps 链路处理依赖；除 Session 外均可为 nil
type Deps struct {
	Session *session.Manager
	Metrics *metrics.AppMetrics
	Hub     Broadcaster
	Cache   StatusCache
	Journal *storage.Journal
	// JournalUplink 是否记录上行帧
	JournalUplink bool
	Logger        *zap.Logger
}

// NewLinkHandler 构建链路处理器：每条链路一个 M600 适配器（独立的流式解码缓冲），
// 完成会话绑定、指标上报、实时推送、状态缓存与帧日志。
func NewLinkHandler(d Deps) link.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return func(l link.Link) link.Callbacks {
		h := newLinkState(d, l)
		return link.Callbacks{OnData: h.onData, OnReopen: h.onReopen, OnClose: h.onClose}
	}
}

type linkState struct {
	Deps
	l       link.Link
	id      string
	ad      adapter.Adapter
	logger  *zap.Logger
	sniffed bool
}

func newLinkState(d Deps, l link.Link) *linkState {
	h := &linkState{
		Deps:   d,
		l:      l,
		id:     l.ID(),
		logger: d.Logger.With(zap.String("link", l.ID()), zap.String("kind", l.Kind())),
	}
	// 应答表中的每个模块/命令显式注册，其余（无字段表或未知模块）走兜底
	ad := m600.NewAdapter()
	for _, s := range m600.Schemas() {
		if s.Direction != m600.DirDeviceToHost {
			continue
		}
		ad.Register(s.Module, s.Command, h.onRecord)
	}
	ad.SetFallback(h.onUnknown)
	h.ad = ad

	d.Session.Bind(l, time.Now())
	h.logger.Info("link bound")
	return h
}

func (h *linkState) onData(p []byte) {
	if h.Metrics != nil {
		h.Metrics.BytesReceived.WithLabelValues(h.id).Add(float64(len(p)))
	}
	if !h.sniffed && len(p) >= 2 {
		h.sniffed = true
		if !h.ad.Sniff(p) {
			h.logger.Warn("first chunk does not start with frame header, check baud rate",
				zap.String("head", m600.HexDump(p[:min(len(p), 16)])))
		}
	}

	prev := h.ad.Stats()
	err := h.ad.ProcessBytes(p)
	cur := h.ad.Stats()
	h.Metrics.ObserveStream(h.id, prev, cur)
	h.Session.UpdateStream(h.id, cur)
	if cur.CRCErrors > prev.CRCErrors {
		h.logger.Debug("crc mismatch, resyncing", zap.Uint64("crc_errors", cur.CRCErrors))
	}

	for _, de := range decodeErrors(err) {
		h.onDecodeError(de)
	}
}

func (h *linkState) onRecord(r *m600.Record) error {
	h.Session.OnFrame(h.id, r, r.At)
	if h.Metrics != nil {
		h.Metrics.FramesDecoded.WithLabelValues(r.Module.String(), r.Cmd.String()).Inc()
		h.Metrics.OnlineGauge.Set(float64(h.Session.OnlineCount(r.At)))
	}
	summary := r.Summary()
	h.logger.Debug("record", zap.String("summary", summary), zap.String("raw", r.Raw))

	if h.Hub != nil {
		h.Hub.Broadcast(h.id, RecordEvent{
			Link:    h.id,
			Module:  r.Module.String(),
			Command: r.Cmd.String(),
			Summary: summary,
			Record:  r,
		})
	}

	result := models.ResultRaw
	var decoded []byte
	if len(r.Values) > 0 {
		result = models.ResultOK
		fields := r.Values.Map()
		decoded, _ = json.Marshal(r.Values)
		h.cacheStatus(r, fields, summary)
		if h.Journal != nil {
			data, _ := json.Marshal(fields)
			h.Journal.Snapshot(&models.StatusSnapshot{
				LinkID:    h.id,
				Module:    int16(r.Module),
				Command:   int16(r.Cmd),
				Fields:    data,
				Summary:   summary,
				UpdatedAt: r.At,
			})
		}
	}
	if h.JournalUplink {
		h.Journal.Frame(&models.FrameLog{
			LinkID:    h.id,
			Direction: models.DirectionUp,
			Module:    int16(r.Module),
			Command:   int16(r.Cmd),
			Payload:   r.Frame.Payload,
			Raw:       r.Raw,
			Decoded:   decoded,
			Result:    result,
			CreatedAt: r.At,
		})
	}
	return nil
}

func (h *linkState) onUnknown(r *m600.Record) error {
	h.logger.Info("frame without payload schema",
		zap.Stringer("module", r.Module),
		zap.Stringer("cmd", r.Cmd),
		zap.String("raw", r.Raw))
	return h.onRecord(r)
}

func (h *linkState) cacheStatus(r *m600.Record, fields map[string]string, summary string) {
	if h.Cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := h.Cache.Set(ctx, &redisstore.CachedStatus{
		LinkID:  h.id,
		Module:  uint8(r.Module),
		Command: uint8(r.Cmd),
		Fields:  fields,
		Summary: summary,
		At:      r.At,
	})
	if err != nil {
		h.logger.Warn("cache status failed", zap.Error(err))
	}
}

func (h *linkState) onDecodeError(de *m600.DecodeError) {
	h.logger.Warn("payload decode failed", zap.Error(de))
	if h.Metrics != nil {
		h.Metrics.DecodeErrors.WithLabelValues(de.Module.String(), de.Command.String()).Inc()
	}
	if h.JournalUplink {
		h.Journal.Frame(&models.FrameLog{
			LinkID:    h.id,
			Direction: models.DirectionUp,
			Module:    int16(de.Module),
			Command:   int16(de.Command),
			Result:    models.ResultDecodeError,
			CreatedAt: time.Now(),
		})
	}
}

// onReopen 设备重开后丢弃旧设备遗留的半帧，并重新检查首包
func (h *linkState) onReopen() {
	if n := h.ad.Buffered(); n > 0 {
		h.logger.Info("dropping partial frame after reopen", zap.Int("bytes", n))
	}
	h.ad.Reset()
	h.sniffed = false
}

func (h *linkState) onClose() {
	h.Session.Unbind(h.id, h.l)
	h.ad.Reset()
	if h.Metrics != nil {
		h.Metrics.OnlineGauge.Set(float64(h.Session.OnlineCount(time.Now())))
	}
	st := h.ad.Stats()
	h.logger.Info("link closed",
		zap.Uint64("frames", st.Frames),
		zap.Uint64("crc_errors", st.CRCErrors),
		zap.Uint64("discarded_bytes", st.DiscardedBytes))
}

// decodeErrors 展开 errors.Join 结果中的 *m600.DecodeError
func decodeErrors(err error) []*m600.DecodeError {
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		var out []*m600.DecodeError
		for _, e := range multi.Unwrap() {
			out = append(out, decodeErrors(e)...)
		}
		return out
	}
	var de *m600.DecodeError
	if errors.As(err, &de) {
		return []*m600.DecodeError{de}
	}
	return nil
}
