// Package middleware 提供HTTP中间件
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AuthConfig API认证配置
type AuthConfig struct {
	APIKeys []string
	Enabled bool
}

// ContextKeyCaller 认证通过后写入的调用方标识（脱敏后的 key）
const ContextKeyCaller = "caller"

// APIKeyAuth 写接口认证：X-API-Key 或 Authorization: Bearer <key>
// 缺少 key 返回 401，key 不在配置列表中返回 403；未启用时直接放行。
func APIKeyAuth(cfg AuthConfig, logger *zap.Logger) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	keys := make([][]byte, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(c *gin.Context) {
		key := requestAPIKey(c.Request)
		fields := []zap.Field{
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.String("remote_addr", c.ClientIP()),
		}
		if key == "" {
			logger.Warn("api auth: missing api key", fields...)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "请在Header中提供 X-API-Key 或 Authorization: Bearer <token>",
			})
			return
		}
		if !matchKey(keys, []byte(key)) {
			logger.Warn("api auth: invalid api key", append(fields, zap.String("api_key", maskAPIKey(key)))...)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "无效的API Key",
			})
			return
		}
		c.Set(ContextKeyCaller, maskAPIKey(key))
		c.Next()
	}
}

func requestAPIKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// matchKey 逐个常量时间比较，不提前返回
func matchKey(keys [][]byte, key []byte) bool {
	found := 0
	for _, k := range keys {
		found |= subtle.ConstantTimeCompare(k, key)
	}
	return found == 1
}

// maskAPIKey 脱敏：仅保留前4位和后4位
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// RateLimit 全局令牌桶限流，perSec<=0 时不限流
func RateLimit(perSec float64, burst int) gin.HandlerFunc {
	if perSec <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(perSec), burst)
	return func(c *gin.Context) {
		if !lim.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// CORS 允许浏览器调试面板跨域访问
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
