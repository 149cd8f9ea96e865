package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/m600-assistant/internal/api/middleware"
	"github.com/taoyao-code/m600-assistant/internal/outbound"
	"github.com/taoyao-code/m600-assistant/internal/protocol/m600"
	"github.com/taoyao-code/m600-assistant/internal/session"
	"github.com/taoyao-code/m600-assistant/internal/storage"
	redisstore "github.com/taoyao-code/m600-assistant/internal/storage/redis"
)

// CommandSubmitter 下行命令入队
type CommandSubmitter interface {
	Submit(linkID string, module m600.Module, cmd m600.Command, fields map[string]int) (*outbound.Command, error)
	Len() int
}

// StatusReader Redis 状态缓存读取
type StatusReader interface {
	List(ctx context.Context, linkID string) ([]redisstore.CachedStatus, error)
}

// Handler 链路查询与命令下发
type Handler struct {
	sess     *session.Manager
	commands CommandSubmitter
	cache    StatusReader
	history  storage.HistoryRepo
	logger   *zap.Logger
}

// NewHandler cache、history 可为 nil
func NewHandler(sess *session.Manager, commands CommandSubmitter, cache StatusReader, history storage.HistoryRepo, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sess: sess, commands: commands, cache: cache, history: history, logger: logger}
}

// ListLinks 已绑定链路及在线状态
func (h *Handler) ListLinks(c *gin.Context) {
	now := time.Now()
	c.JSON(http.StatusOK, gin.H{
		"links":  h.sess.Links(now),
		"online": h.sess.OnlineCount(now),
	})
}

// CommandRequest 下发命令请求；module/command 可用名称或数值字符串
type CommandRequest struct {
	Module  m600.Module    `json:"module" binding:"required"`
	Command m600.Command   `json:"command"`
	Fields  map[string]int `json:"fields"`
}

// SendCommand 编码并入队
func (h *Handler) SendCommand(c *gin.Context) {
	linkID := c.Param("link")
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd, err := h.commands.Submit(linkID, req.Module, req.Command, req.Fields)
	switch {
	case err == nil:
	case errors.Is(err, m600.ErrNoSchema):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, outbound.ErrLinkOffline):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, outbound.ErrQueueFull):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
		return
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("command queued",
		zap.String("id", cmd.ID),
		zap.String("link", linkID),
		zap.Stringer("module", cmd.Module),
		zap.Stringer("cmd", cmd.Cmd),
		zap.Int("priority", cmd.Priority),
		zap.String("api_key", c.GetString(middleware.ContextKeyCaller)))
	c.JSON(http.StatusAccepted, gin.H{
		"id":       cmd.ID,
		"link":     linkID,
		"module":   cmd.Module,
		"command":  cmd.Cmd,
		"priority": cmd.Priority,
		"frame":    m600.HexDump(cmd.Frame),
		"queued":   h.commands.Len(),
	})
}

// GetStatus 各模块各命令最新状态：优先 Redis 缓存，未启用或为空时用内存会话
func (h *Handler) GetStatus(c *gin.Context) {
	linkID := c.Param("link")
	if h.cache != nil {
		list, err := h.cache.List(c.Request.Context(), linkID)
		if err != nil {
			h.logger.Warn("read status cache failed", zap.String("link", linkID), zap.Error(err))
		} else if len(list) > 0 {
			c.JSON(http.StatusOK, gin.H{"link": linkID, "source": "cache", "status": list})
			return
		}
	}

	recs := h.sess.Latest(linkID)
	if recs == nil {
		if _, ok := h.sess.GetConn(linkID); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "link not found"})
			return
		}
	}
	status := make([]gin.H, 0, len(recs))
	for _, r := range recs {
		status = append(status, gin.H{
			"module":  r.Module,
			"command": r.Cmd,
			"fields":  r.Values.Map(),
			"values":  r.Values,
			"summary": r.Summary(),
			"raw":     r.Raw,
			"at":      r.At,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"link":   linkID,
		"source": "session",
		"online": h.sess.IsOnline(linkID, time.Now()),
		"status": status,
	})
}

// ListFrames 帧日志历史
// 查询参数：module、direction(up|down)、since、until(RFC3339)、limit、offset
func (h *Handler) ListFrames(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "frame journal disabled"})
		return
	}
	q := storage.FrameQuery{LinkID: c.Param("link")}
	if v := c.Query("module"); v != "" {
		m, err := m600.ParseModule(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		mod := int16(m)
		q.Module = &mod
	}
	switch c.Query("direction") {
	case "":
	case "up":
		d := int16(m600.DirDeviceToHost)
		q.Direction = &d
	case "down":
		d := int16(m600.DirHostToDevice)
		q.Direction = &d
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be up or down"})
		return
	}
	var err error
	if q.Since, err = parseTime(c.Query("since")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
		return
	}
	if q.Until, err = parseTime(c.Query("until")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid until"})
		return
	}
	if v := c.Query("limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			q.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n >= 0 {
			q.Offset = n
		}
	}

	list, err := h.history.ListFrameLogs(c.Request.Context(), q)
	if err != nil {
		h.logger.Error("list frame logs failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"link": q.LinkID, "frames": list})
}

// ListSnapshots 持久化的各模块最新状态
func (h *Handler) ListSnapshots(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "frame journal disabled"})
		return
	}
	list, err := h.history.ListSnapshots(c.Request.Context(), c.Param("link"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"link": c.Param("link"), "snapshots": list})
}

// ListSchemas 静态字段表
func (h *Handler) ListSchemas(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"schemas": m600.Schemas()})
}

// DecodeRequest 调试解码请求
type DecodeRequest struct {
	Hex string `json:"hex" binding:"required"`
}

// Decode 无状态解码一段十六进制字节流（可含多帧与噪声）
func (h *Handler) Decode(c *gin.Context) {
	var req DecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	data, err := m600.ParseHex(req.Hex)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hex: " + err.Error()})
		return
	}

	// 恰好一个完整帧时按帧方向解码（可查看下行命令），否则按上行字节流解码
	if fr, err := m600.Parse(data); err == nil && fr.Len == len(data) {
		rec, decErr := m600.DecodeFrame(fr)
		resp := gin.H{"records": []gin.H{}, "direction": fr.Direction}
		if rec != nil {
			resp["records"] = []gin.H{recordJSON(rec)}
		}
		if decErr != nil {
			resp["error"] = decErr.Error()
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	codec := m600.NewCodec()
	recs, decErr := codec.FeedBytes(data)
	out := make([]gin.H, 0, len(recs))
	for _, r := range recs {
		out = append(out, recordJSON(r))
	}
	resp := gin.H{"records": out, "stats": codec.Stats()}
	if decErr != nil {
		resp["error"] = decErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func recordJSON(r *m600.Record) gin.H {
	return gin.H{
		"module":  r.Module,
		"command": r.Cmd,
		"values":  r.Values,
		"fields":  r.Values.Map(),
		"summary": r.Summary(),
		"raw":     r.Raw,
	}
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
