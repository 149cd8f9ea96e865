package health

import (
	"context"
	"fmt"
	"time"

	"github.com/taoyao-code/m600-assistant/internal/session"
	"github.com/taoyao-code/m600-assistant/internal/tcpserver"
)

// LinkSource 链路会话快照
type LinkSource interface {
	Links(now time.Time) []session.LinkInfo
}

// LinkChecker 串口链路检查：配置的串口是否已打开、是否有有效上行
// 串口未打开（拔出、重开中）为 Degraded；全部链路都未打开为 Unhealthy。
type LinkChecker struct {
	src      LinkSource
	expected []string
}

// NewLinkChecker expected 为配置的串口链路ID
func NewLinkChecker(src LinkSource, expected []string) *LinkChecker {
	return &LinkChecker{src: src, expected: expected}
}

func (c *LinkChecker) Name() string { return "links" }

func (c *LinkChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	infos := c.src.Links(start)
	bound := make(map[string]session.LinkInfo, len(infos))
	online := 0
	for _, info := range infos {
		bound[info.ID] = info
		if info.Online {
			online++
		}
	}

	var missing []string
	for _, id := range c.expected {
		if _, ok := bound[id]; !ok {
			missing = append(missing, id)
		}
	}

	status := StatusHealthy
	message := "ok"
	switch {
	case len(c.expected) > 0 && len(missing) == len(c.expected):
		status = StatusUnhealthy
		message = "no serial port open"
	case len(missing) > 0:
		status = StatusDegraded
		message = fmt.Sprintf("%d serial port(s) not open", len(missing))
	}

	details := map[string]any{
		"bound":  len(infos),
		"online": online,
	}
	if len(missing) > 0 {
		details["missing"] = missing
	}
	return CheckResult{Status: status, Message: message, Details: details, Latency: time.Since(start)}
}

// TCPChecker 串口服务器接入检查
type TCPChecker struct {
	server *tcpserver.Server
}

// NewTCPChecker 创建TCP健康检查器
func NewTCPChecker(server *tcpserver.Server) *TCPChecker {
	return &TCPChecker{server: server}
}

func (c *TCPChecker) Name() string { return "tcp" }

func (c *TCPChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	if c.server.Addr() == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "listener not started", Latency: time.Since(start)}
	}
	ls := c.server.LimiterStats()
	rs := c.server.RateStats()

	status := StatusHealthy
	message := "ok"
	if ls.Utilization > 0.8 {
		status = StatusDegraded
		message = "high connection usage"
	}
	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]any{
			"addr":               c.server.Addr().String(),
			"active_connections": ls.ActiveConnections,
			"max_connections":    ls.MaxConnections,
			"utilization":        fmt.Sprintf("%.1f%%", ls.Utilization*100),
			"rejected_total":     ls.RejectedTotal,
			"rate_rejected":      rs.RejectedTotal,
		},
		Latency: time.Since(start),
	}
}
