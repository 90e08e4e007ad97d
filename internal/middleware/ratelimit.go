package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// TenantRateLimit 每租户请求速率限制。
//
// 和每日配额互补：配额限制总量，这里限制瞬时速率，保护中继和
// 数据库不被单租户打爆。限流器按租户懒创建，常驻内存。
type TenantRateLimit struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

// NewTenantRateLimit 创建每租户限流中间件，perMin <= 0 表示不限制
func NewTenantRateLimit(perMin int) *TenantRateLimit {
	return &TenantRateLimit{
		limiters: make(map[string]*rate.Limiter),
		perMin:   perMin,
	}
}

// Limit 按租户限制发送接口速率
func (rl *TenantRateLimit) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.perMin <= 0 {
			c.Next()
			return
		}

		tenantID := c.GetString("tenantID")
		if tenantID == "" {
			c.Next()
			return
		}

		if !rl.limiter(tenantID).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (rl *TenantRateLimit) limiter(tenantID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.limiters[tenantID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(float64(rl.perMin)/60.0), rl.perMin)
		rl.limiters[tenantID] = l
	}
	return l
}
