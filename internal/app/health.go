package app

import (
	"github.com/taoyao-code/m600-assistant/internal/health"
	"github.com/taoyao-code/m600-assistant/internal/session"
	"github.com/taoyao-code/m600-assistant/internal/tcpserver"
)

// NewHealthAggregator 创建健康检查聚合器：串口链路，启用持久化时加数据库
func NewHealthAggregator(sess *session.Manager, serialLinks []string, st *Storage) *health.Aggregator {
	agg := health.NewAggregator(health.NewLinkChecker(sess, serialLinks))
	if st != nil {
		agg.AddChecker(health.NewDatabaseChecker(st.Pool, st.Journal))
	}
	return agg
}

// AddTCPChecker 添加TCP检查器到聚合器
func AddTCPChecker(aggregator *health.Aggregator, tcpServer *tcpserver.Server) {
	aggregator.AddChecker(health.NewTCPChecker(tcpServer))
}
