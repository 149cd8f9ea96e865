package wshub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/taoyao-code/m600-assistant/internal/metrics"
)

const (
	sendBuffer = 64
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type client struct {
	conn *websocket.Conn
	send chan []byte
	link string // 为空表示订阅全部链路
}

// Hub websocket 实时记录推送
// 每个订阅者一个带缓冲的发送队列，队列满时跳过该订阅者，不阻塞链路读协程。
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
	metrics  *metrics.AppMetrics
	skipped  uint64
}

func New(logger *zap.Logger, m *metrics.AppMetrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger.Named("ws"),
		metrics: m,
	}
}

// Broadcast 序列化为 JSON 推送给订阅了该链路的客户端
func (h *Hub) Broadcast(linkID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("marshal broadcast failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.link != "" && c.link != linkID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.skipped++
		}
	}
}

// Count 当前订阅数
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Skipped 因订阅者过慢被跳过的消息数
func (h *Hub) Skipped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.skipped
}

// ServeHTTP 升级为 websocket；?link= 只订阅指定链路
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer), link: r.URL.Query().Get("link")}
	n := h.add(c)
	h.logger.Info("ws client connected", zap.String("remote", r.RemoteAddr), zap.String("link", c.link), zap.Int("total", n))

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *Hub) add(c *client) int {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.setGauge(n)
	return n
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()
	h.setGauge(n)
	h.logger.Info("ws client disconnected", zap.Int("total", n))
}

func (h *Hub) setGauge(n int) {
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop 只处理控制帧与断开
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Close 断开全部订阅者
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
}
