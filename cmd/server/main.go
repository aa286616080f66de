package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payflow/internal/pkg/config"
	"payflow/internal/pkg/middleware"
	"payflow/internal/pkg/registry"
	"payflow/pkg/database"
	"payflow/pkg/logger"
	"payflow/pkg/metrics"

	// 模块通过 init() 自动注册
	_ "payflow/internal/domain/common"
	_ "payflow/internal/domain/payment"
	_ "payflow/internal/domain/user"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 2. 初始化日志
	zlog, err := logger.InitLogger(cfg.App.Env)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("Server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	collector := metrics.GetGlobalCollector()

	// 3. 数据库与执行器
	db, err := database.InitDatabase(cfg.Database, cfg.App.Debug, zlog)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	executor := database.NewExecutor(
		database.GormProber(db),
		zlog,
		database.WithMetrics(collector),
		database.WithQueryDefaults(cfg.Query.Retries, cfg.Query.MaxBackoff()),
	)

	poolMonitor := database.NewPoolMonitor(sqlDB, collector, zlog, database.DefaultPoolMonitorConfig())
	poolMonitor.Start()

	// 4. Redis 可选，不可用时降级
	var rdb *redis.Client
	rdb, err = database.InitRedis(cfg.Redis)
	switch {
	case errors.Is(err, database.ErrRedisDisabled):
		zlog.Info("Redis not configured")
	case err != nil:
		zlog.Warn("Redis unavailable, continuing without it", zap.Error(err))
	default:
		defer rdb.Close()
	}

	// 5. 路由与中间件
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(
		middleware.RecoveryMiddleware(zlog),
		middleware.LoggerMiddleware(zlog),
		middleware.MetricsMiddleware(collector),
		middleware.SecurityHeadersMiddleware(),
		middleware.CORSMiddleware(cfg.CORS.AllowOrigins),
	)

	// 6. 初始化模块
	moduleCtx := &registry.ModuleContext{
		DB:       db,
		Redis:    rdb,
		Router:   r,
		Config:   cfg,
		Logger:   zlog,
		Executor: executor,
		Metrics:  collector,
	}
	moduleCtx.OnShutdown(poolMonitor.Stop)
	if err := registry.InitModules(moduleCtx); err != nil {
		return err
	}

	// 7. 启动服务并等待退出信号
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("Server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		zlog.Info("Shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	// 先停止接收请求，再排空回调队列
	if err := moduleCtx.Shutdown(ctx); err != nil {
		zlog.Error("Module shutdown failed", zap.Error(err))
	}

	zlog.Info("Server stopped")
	return nil
}
