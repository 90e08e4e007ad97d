package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	jwtpkg "tenantmail/backend/internal/auth/jwt"
	"tenantmail/backend/internal/config"
	"tenantmail/backend/internal/middleware"
	"tenantmail/backend/internal/monitoring"
	"tenantmail/backend/internal/service"
	"tenantmail/backend/internal/storage"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config     *config.Config
	Dispatcher *service.MailDispatcher
	JWTManager *jwtpkg.Manager
	Store      storage.Store
	Metrics    *monitoring.Metrics
	Logger     *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.HTTPMetrics(deps.Metrics))

	// 请求体上限：正文 + 附件，留一点报文开销余量
	router.Use(middleware.BodySizeLimit(deps.Config.Mail.MaxAttachmentSize*2 + 1<<20))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Tenant-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 允许所有来源时需清空凭证支持
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	mailHandler := NewMailHandler(deps.Dispatcher, deps.Config.Mail.MaxAttachmentSize, deps.Logger)
	usageHandler := NewUsageHandler(deps.Dispatcher)
	authHandler := NewAuthHandler(deps.Store, deps.JWTManager, deps.Logger)

	jwtAuth := middleware.NewJWTAuth(deps.JWTManager, deps.Logger)
	tenantGuard := middleware.NewTenantGuard(deps.Store, deps.Logger)
	rateLimit := middleware.NewTenantRateLimit(deps.Config.Mail.SendRatePerMinute)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
		}

		authed := v1.Group("")
		authed.Use(jwtAuth.RequireAuth(), tenantGuard.RequireTenant())
		{
			mailGroup := authed.Group("/mail")
			{
				mailGroup.POST("/send", rateLimit.Limit(), mailHandler.Send)
				mailGroup.POST("/send-json", rateLimit.Limit(), mailHandler.SendJSON)
				mailGroup.GET("/:id", mailHandler.GetMail)
			}

			authed.GET("/usage", usageHandler.GetUsage)
		}
	}

	return router
}
