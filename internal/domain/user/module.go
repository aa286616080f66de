package user

import (
	"time"

	"payflow/internal/domain/user/handler"
	"payflow/internal/domain/user/repository"
	"payflow/internal/domain/user/service"
	"payflow/internal/pkg/middleware"
	"payflow/internal/pkg/registry"

	"github.com/gin-gonic/gin"
)

// UserModule 用户模块
type UserModule struct{}

func init() {
	// 自动注册模块
	registry.Register(&UserModule{})
}

func (m *UserModule) Name() string {
	return "user"
}

func (m *UserModule) Priority() int {
	// 用户模块优先级最高，因为其他模块可能依赖它
	return 1
}

func (m *UserModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	userRepo := repository.NewUserRepository(ctx.DB)
	userService := service.NewUserService(
		userRepo,
		ctx.Executor,
		ctx.Config.JWT.Secret,
		time.Duration(ctx.Config.JWT.Expire)*time.Hour,
	)
	userHandler := handler.NewUserHandler(userService)

	// 2. 路由注册
	setupRoutes(ctx.Router, userHandler, ctx.Config.JWT.Secret)

	return nil
}

func setupRoutes(r *gin.Engine, h *handler.UserHandler, secret string) {
	// 公开路由
	g := r.Group("/user")
	{
		g.POST("/register", h.Register)
		g.POST("/login", h.Login)
	}

	// 受保护的路由
	auth := g.Group("")
	auth.Use(middleware.AuthMiddleware(secret))
	{
		auth.GET("/token-verify", h.TokenVerify)
	}
}
