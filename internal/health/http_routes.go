package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterHTTPRoutes 注册健康检查HTTP路由
// /healthz、/readyz 为 /health/live、/health/ready 的简写。
func RegisterHTTPRoutes(r *gin.Engine, aggregator *Aggregator) {
	ready := func(c *gin.Context) {
		if !aggregator.Ready(c.Request.Context()) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"ready":  false,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"ready":  true,
		})
	}
	live := func(c *gin.Context) {
		if !aggregator.Alive() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"alive": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"alive": true})
	}

	r.GET("/health/ready", ready)
	r.GET("/readyz", ready)
	r.GET("/health/live", live)
	r.GET("/healthz", live)

	// 详细健康检查；Degraded 仍返回200，表示可以服务
	r.GET("/health", func(c *gin.Context) {
		report := aggregator.Report(c.Request.Context())
		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	})
}
