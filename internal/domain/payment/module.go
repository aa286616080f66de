package payment

import (
	"time"

	"payflow/internal/domain/payment/handler"
	"payflow/internal/domain/payment/repository"
	"payflow/internal/domain/payment/service"
	"payflow/internal/domain/payment/strategy"
	userRepo "payflow/internal/domain/user/repository"
	userService "payflow/internal/domain/user/service"
	"payflow/internal/pkg/locker"
	"payflow/internal/pkg/middleware"
	"payflow/internal/pkg/paytoken"
	"payflow/internal/pkg/registry"
	"payflow/internal/pkg/worker"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	callbackWorkers = 4
	callbackBuffer  = 256
)

// PaymentModule 支付模块
type PaymentModule struct{}

func init() {
	registry.Register(&PaymentModule{})
}

func (m *PaymentModule) Name() string {
	return "payment"
}

func (m *PaymentModule) Priority() int {
	// 支付模块依赖用户模块，所以优先级较低
	return 20
}

func (m *PaymentModule) Init(ctx *registry.ModuleContext) error {
	cfg := ctx.Config

	// 1. 依赖注入
	pRepo := repository.NewPaymentRepository(ctx.DB)
	ledger := service.NewOrderLedger(pRepo, ctx.Executor, ctx.Logger)

	uRepo := userRepo.NewUserRepository(ctx.DB)
	uService := userService.NewUserService(
		uRepo,
		ctx.Executor,
		cfg.JWT.Secret,
		time.Duration(cfg.JWT.Expire)*time.Hour,
	)

	gateway, err := strategy.NewPayUStrategy(cfg.Payment.MerchantKey, cfg.Payment.FallbackPhone)
	if err != nil {
		return err
	}
	codec := paytoken.NewCodec(cfg.Payment.TokenSecret, cfg.Payment.TokenTTL)

	// 2. 回调审计协程池
	pool := worker.NewWorkerPool(pRepo, ctx.Executor, ctx.Logger, callbackWorkers, callbackBuffer)
	pool.Start()
	ctx.OnShutdown(pool.Stop)

	opts := []service.Option{service.WithMetrics(ctx.Metrics)}
	if ctx.Redis != nil {
		opts = append(opts, service.WithLocker(locker.New(ctx.Redis)))
	} else {
		ctx.Logger.Warn("Redis disabled, payment init lock off")
	}

	pService := service.NewPaymentService(ledger, uService, codec, gateway, pool, ctx.Logger, service.Config{
		BaseURL:     cfg.Server.BaseURL,
		FrontendURL: cfg.Payment.FrontendURL,
		LockTTL:     cfg.Payment.InitLockTTL,
	}, opts...)
	pHandler := handler.NewPaymentHandler(pService)

	// 3. 路由注册
	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	setupRoutes(ctx.Router, pHandler, cfg.JWT.Secret, limiter, cfg.App.Debug)

	return nil
}

func setupRoutes(r *gin.Engine, h *handler.PaymentHandler, secret string, limiter *middleware.IPRateLimiter, debug bool) {
	// 网关回跳 (无需登录，由支付令牌校验)
	r.POST("/user/payment/success", h.PaymentSuccess)
	r.Any("/payment/fail", h.PaymentFail)
	r.POST("/user/verify-payment", h.VerifyPayment)

	// 沙箱联调参数，仅调试模式开放
	if debug {
		r.POST("/user/auth/dummy/payment", h.DummyPayment)
	}

	// 需要鉴权的接口
	auth := r.Group("/user/auth")
	auth.Use(middleware.AuthMiddleware(secret), middleware.RateLimitMiddleware(limiter))
	{
		auth.POST("/payment", h.InitPayment)
	}
}
