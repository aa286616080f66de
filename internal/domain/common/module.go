package common

import (
	"context"

	commonHandler "payflow/internal/pkg/common"
	"payflow/internal/pkg/registry"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CommonModule 通用功能模块
type CommonModule struct{}

func init() {
	registry.Register(&CommonModule{})
}

func (m *CommonModule) Name() string {
	return "common"
}

func (m *CommonModule) Priority() int {
	return 100 // 最后初始化
}

func (m *CommonModule) Init(ctx *registry.ModuleContext) error {
	checks := map[string]commonHandler.Checker{
		"database": ctx.Executor.Prober().Probe,
	}
	if ctx.Redis != nil {
		rdb := ctx.Redis
		checks["redis"] = func(c context.Context) error {
			return rdb.Ping(c).Err()
		}
	}

	setupRoutes(ctx.Router, commonHandler.NewHealthHandler(checks))
	return nil
}

func setupRoutes(r *gin.Engine, h *commonHandler.HealthHandler) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
