package registry

import (
	"context"
	"fmt"
	"sort"

	"payflow/internal/pkg/config"
	"payflow/pkg/database"
	"payflow/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ShutdownFunc 模块退出时的清理函数
type ShutdownFunc func(ctx context.Context) error

// ModuleContext 模块初始化所需的上下文
type ModuleContext struct {
	DB       *gorm.DB
	Redis    *redis.Client // 可能为 nil，模块需自行降级
	Router   *gin.Engine
	Config   *config.Config
	Logger   *zap.Logger
	Executor *database.Executor
	Metrics  *metrics.MetricsCollector

	shutdown []ShutdownFunc
}

// OnShutdown 注册退出清理函数，按注册的逆序执行
func (c *ModuleContext) OnShutdown(fn ShutdownFunc) {
	c.shutdown = append(c.shutdown, fn)
}

// Shutdown 执行所有清理函数，返回遇到的第一个错误
func (c *ModuleContext) Shutdown(ctx context.Context) error {
	var first error
	for i := len(c.shutdown) - 1; i >= 0; i-- {
		if err := c.shutdown[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Module 模块接口
type Module interface {
	// Name 返回模块名称
	Name() string

	// Init 初始化模块（依赖注入、路由注册等）
	Init(ctx *ModuleContext) error

	// Priority 返回初始化优先级（数字越小越先初始化）
	Priority() int
}

// moduleRegistry 全局模块注册表
var moduleRegistry = make(map[string]Module)

// Register 注册模块，通常在模块包的 init() 中调用
func Register(module Module) {
	moduleRegistry[module.Name()] = module
}

// GetModules 获取所有已注册的模块
func GetModules() map[string]Module {
	return moduleRegistry
}

// InitModules 按优先级初始化所有模块，优先级相同时按名称排序
func InitModules(ctx *ModuleContext) error {
	modules := make([]Module, 0, len(moduleRegistry))
	for _, m := range moduleRegistry {
		modules = append(modules, m)
	}

	sort.Slice(modules, func(i, j int) bool {
		if modules[i].Priority() != modules[j].Priority() {
			return modules[i].Priority() < modules[j].Priority()
		}
		return modules[i].Name() < modules[j].Name()
	})

	for _, module := range modules {
		if err := module.Init(ctx); err != nil {
			return fmt.Errorf("init module %s: %w", module.Name(), err)
		}
		if ctx.Logger != nil {
			ctx.Logger.Info("Module initialized", zap.String("module", module.Name()))
		}
	}

	return nil
}
