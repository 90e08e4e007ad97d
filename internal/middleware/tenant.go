package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tenantmail/backend/internal/storage"
)

// TenantGuard 租户加载与隔离中间件。
//
// 从 JWT 声明中取租户 ID，加载租户并拒绝停用租户的所有请求。
// 租户对象写入上下文，后续处理器不再重复查询。
type TenantGuard struct {
	tenants storage.TenantRepository
	log     *zap.Logger
}

// NewTenantGuard 创建租户中间件
func NewTenantGuard(tenants storage.TenantRepository, log *zap.Logger) *TenantGuard {
	return &TenantGuard{
		tenants: tenants,
		log:     log,
	}
}

// RequireTenant 要求请求归属于一个激活的租户
func (tg *TenantGuard) RequireTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetString("tenantID")
		if tenantID == "" {
			// JWT 之外的调用方（如内部工具）可以用请求头指定租户
			tenantID = c.GetHeader("X-Tenant-ID")
		}
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "tenant identity required",
			})
			c.Abort()
			return
		}

		tenant, err := tg.tenants.GetTenant(tenantID)
		if err != nil {
			if errors.Is(err, storage.ErrTenantNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"error": "tenant not found",
				})
			} else {
				tg.log.Error("failed to load tenant",
					zap.String("tenant_id", tenantID),
					zap.Error(err),
				)
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
			c.Abort()
			return
		}

		if !tenant.IsActive {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "tenant is deactivated",
			})
			c.Abort()
			return
		}

		c.Set("tenantID", tenant.ID)
		c.Set("tenant", tenant)
		c.Next()
	}
}
