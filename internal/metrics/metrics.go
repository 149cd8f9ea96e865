package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/taoyao-code/m600-assistant/internal/protocol/m600"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// 丢弃原因
const (
	DiscardCRC         = "crc"
	DiscardFalseHeader = "false_header"
	DiscardNoise       = "noise"
)

// AppMetrics 自定义业务指标
type AppMetrics struct {
	TCPAccepted      prometheus.Counter
	BytesReceived    *prometheus.CounterVec // labels: link
	FramesDecoded    *prometheus.CounterVec // labels: module, cmd
	StreamDiscard    *prometheus.CounterVec // labels: link, reason
	DecodeErrors     *prometheus.CounterVec // labels: module, cmd
	CommandsSent     *prometheus.CounterVec // labels: module, cmd, result=sent|failed|dropped
	OnlineGauge      prometheus.Gauge       // 当前在线链路数
	WSClients        prometheus.Gauge       // websocket 订阅数
	OutboundQueueLen prometheus.Gauge
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		TCPAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "m600_tcp_accept_total",
			Help: "Total accepted serial-over-TCP connections.",
		}),
		BytesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "m600_bytes_received_total",
			Help: "Raw bytes received per link.",
		}, []string{"link"}),
		FramesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "m600_frames_decoded_total",
			Help: "Validated uplink frames by module and command.",
		}, []string{"module", "cmd"}),
		StreamDiscard: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "m600_stream_discard_total",
			Help: "Stream resynchronization events by reason.",
		}, []string{"link", "reason"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "m600_decode_errors_total",
			Help: "Payload decode failures by module and command.",
		}, []string{"module", "cmd"}),
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "m600_commands_total",
			Help: "Downlink commands by module, command and result.",
		}, []string{"module", "cmd", "result"}),
		OnlineGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "m600_links_online",
			Help: "Current number of links with recent uplink traffic.",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "m600_ws_clients",
			Help: "Connected websocket record subscribers.",
		}),
		OutboundQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "m600_outbound_queue_length",
			Help: "Pending downlink commands.",
		}),
	}
	reg.MustRegister(m.TCPAccepted, m.BytesReceived, m.FramesDecoded, m.StreamDiscard, m.DecodeErrors,
		m.CommandsSent, m.OnlineGauge, m.WSClients, m.OutboundQueueLen)
	return m
}

// ObserveStream 将两次诊断计数快照之差累加到丢弃指标
func (m *AppMetrics) ObserveStream(link string, prev, cur m600.StreamStats) {
	if m == nil {
		return
	}
	if d := cur.CRCErrors - prev.CRCErrors; d > 0 {
		m.StreamDiscard.WithLabelValues(link, DiscardCRC).Add(float64(d))
	}
	if d := cur.FalseHeaders - prev.FalseHeaders; d > 0 {
		m.StreamDiscard.WithLabelValues(link, DiscardFalseHeader).Add(float64(d))
	}
	if d := cur.NoiseBytes - prev.NoiseBytes; d > 0 {
		m.StreamDiscard.WithLabelValues(link, DiscardNoise).Add(float64(d))
	}
}
