package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	jwtpkg "tenantmail/backend/internal/auth/jwt"
	"tenantmail/backend/internal/config"
	"tenantmail/backend/internal/health"
	"tenantmail/backend/internal/logger"
	"tenantmail/backend/internal/monitoring"
	"tenantmail/backend/internal/pool"
	"tenantmail/backend/internal/service"
	"tenantmail/backend/internal/smtp"
	"tenantmail/backend/internal/storage"
	"tenantmail/backend/internal/storage/filesystem"
	"tenantmail/backend/internal/storage/memory"
	"tenantmail/backend/internal/storage/postgres"
	redisstore "tenantmail/backend/internal/storage/redis"
	httptransport "tenantmail/backend/internal/transport/http"
)

// main 启动同时包含 HTTP API 与入站 SMTP 的邮件后端服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	log.Info("starting tenantmail server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层：有数据库配置时用数据库，否则用内存存储（开发环境）
	var store storage.Store
	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		dbStore, err := postgres.NewStoreWithType(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		store = dbStore
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}

	// Redis 可选：启用后计数器走锁辅助路径，并纳入健康检查
	var redisClient *redisstore.Client
	var locker service.Locker
	if cfg.Redis.Enabled {
		redisClient, err = redisstore.New(&cfg.Redis, log)
		if err != nil {
			log.Warn("redis unavailable, usage counters fall back to atomic upserts", zap.Error(err))
		} else {
			locker = redisstore.NewLocker(redisClient, log)
			log.Info("redis connected, usage counters use lock-assisted path",
				zap.String("address", cfg.Redis.Address),
			)
		}
	}

	// 附件文件存储
	fsStore, err := filesystem.NewStore(cfg.Storage.AttachmentRoot)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize attachment storage: %v", err))
	}
	log.Info("attachment storage initialized", zap.String("path", cfg.Storage.AttachmentRoot))

	// 监控与健康检查
	metrics := monitoring.NewMetrics()
	healthChecker := health.NewHealthChecker(store, redisClient, log)

	// 投递协程池
	deliveryPool := pool.NewWorkerPool(cfg.Mail.DeliveryWorkers, cfg.Mail.DeliveryQueueSize, log)

	// 服务层组装
	transport := smtp.NewTransport(&cfg.Relay, fsStore, store, log)
	accountant := service.NewUsageAccountant(store, store, locker, cfg.Mail.LockTTL, cfg.Mail.LockWait, log)
	notifier := service.NewThresholdNotifier(transport, store, log)
	resolver := service.NewRecipientResolver(store, log)
	assigner := service.NewFolderAssigner(store)

	dispatcher := service.NewMailDispatcher(service.MailDispatcherDeps{
		Store:       store,
		Resolver:    resolver,
		Assigner:    assigner,
		Accountant:  accountant,
		Notifier:    notifier,
		Transport:   transport,
		Attachments: fsStore,
		Pool:        deliveryPool,
		Metrics:     metrics,
		Logger:      log,
	})

	jwtManager := jwtpkg.NewManager(
		cfg.JWT.Secret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessExpiry,
		7*24*time.Hour,
	)

	// HTTP 服务器
	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:     cfg,
		Dispatcher: dispatcher,
		JWTManager: jwtManager,
		Store:      store,
		Metrics:    metrics,
		Logger:     log,
	})

	// 健康检查处理器（用于 Kubernetes 等）
	router.GET("/health/live", gin.WrapF(healthChecker.LiveEndpoint))
	router.GET("/health/ready", gin.WrapF(healthChecker.ReadyEndpoint))

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(metrics.HTTPHandler()))

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// 入站 SMTP 服务器
	smtpBackend := smtp.NewBackend(store, resolver, assigner, accountant, fsStore, cfg.SMTP.Domain, metrics, log)
	smtpServer := smtp.NewServer(smtpBackend, &cfg.SMTP, cfg.Log.Development)

	// 信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deliveryPool.Start(ctx)

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// SMTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting inbound SMTP server",
			zap.String("address", cfg.SMTP.BindAddr),
			zap.String("domain", cfg.SMTP.Domain),
		)
		if err := smtpServer.ListenAndServe(); err != nil {
			log.Error("SMTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := smtpServer.Close(); err != nil {
			log.Warn("SMTP server close warning", zap.Error(err))
		}

		deliveryPool.Stop()

		if redisClient != nil {
			_ = redisClient.Close()
		}
		if err := store.Close(); err != nil {
			log.Warn("storage close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}
