package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tenantmail/backend/internal/monitoring"
)

// HTTPMetrics 记录 HTTP 请求指标
func HTTPMetrics(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// 用路由模板而不是原始路径，避免指标基数爆炸
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.HTTPObserve(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
