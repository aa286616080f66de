package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"payflow/internal/domain/payment/model"
	"payflow/internal/domain/payment/strategy"
	userModel "payflow/internal/domain/user/model"
	userService "payflow/internal/domain/user/service"
	"payflow/internal/pkg/apperr"
	"payflow/internal/pkg/locker"
	"payflow/internal/pkg/paytoken"
	"payflow/internal/pkg/worker"
	"payflow/pkg/metrics"

	"go.uber.org/zap"
)

const (
	msgMissingFields   = "You're not authorized. Please complete the following required field(s) and log in again: "
	msgNotAllowed      = "User not allowed to make payment"
	msgAlreadyPaid     = "This order has already been paid."
	msgCallbackNoToken = "Token is missing. Something went wrong."
	msgCallbackToken   = "Token verification failed. If your account was debited, we'll verify and contact you via email or SMS shortly."
	msgCallbackData    = "Invalid transaction data from PayU."
	msgCallbackFailed  = "Something went wrong while confirming your payment. We're working on it."
	msgVerifyNoToken   = "Token is missing"
	msgVerifyToken     = "Invalid or expired token"
	msgVerifyNoTxn     = "Invalid transaction ID"
	msgVerifyNoOrder   = "Order not found"

	gatewayStatusSuccess = "success"
	lockWait             = 2 * time.Second
)

// InitPaymentInput 发起支付请求，金额与商品保持调用方提交的原始 JSON
type InitPaymentInput struct {
	Items      json.RawMessage
	TotalPrice json.RawMessage
	Email      string
}

// InitPaymentResult 发起支付结果
type InitPaymentResult struct {
	OrderID       string              `json:"orderId"`
	TxnID         string              `json:"txnId"`
	Token         string              `json:"token"`
	Hash          string              `json:"hash"`
	PaymentParams *strategy.PayParams `json:"paymentParams"`
}

// UserFinder 支付所需的用户查询，不存在时返回 userService.ErrUserNotFound
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*userModel.User, error)
}

// InitLocker 发起支付的分布式锁
type InitLocker interface {
	Obtain(ctx context.Context, key string, ttl, wait time.Duration) (*locker.Lock, error)
}

// CallbackRecorder 异步记录网关回调
type CallbackRecorder interface {
	AddTask(task worker.CallbackTask)
}

type PaymentService interface {
	InitPayment(ctx context.Context, in InitPaymentInput) (*InitPaymentResult, error)
	// HandleSuccessCallback 返回前端成功页地址
	HandleSuccessCallback(ctx context.Context, token string, params url.Values) (string, error)
	// HandleFailureCallback 返回前端失败页地址，订单保持 PENDING
	HandleFailureCallback(ctx context.Context, params url.Values) string
	VerifyPayment(ctx context.Context, token string) (*model.Order, error)
	DummyPayment() (*InitPaymentResult, error)
}

// Config 支付服务配置
type Config struct {
	BaseURL     string // 本服务对外地址，用于拼接回调
	FrontendURL string
	LockTTL     time.Duration
}

type paymentService struct {
	ledger   *OrderLedger
	users    UserFinder
	codec    *paytoken.Codec
	gateway  strategy.PaymentStrategy
	locker   InitLocker // 可选
	recorder CallbackRecorder
	metrics  *metrics.MetricsCollector
	log      *zap.Logger
	cfg      Config
	now      func() time.Time
}

// Option 可选依赖
type Option func(*paymentService)

func WithLocker(l InitLocker) Option {
	return func(s *paymentService) { s.locker = l }
}

func WithMetrics(m *metrics.MetricsCollector) Option {
	return func(s *paymentService) { s.metrics = m }
}

func NewPaymentService(
	ledger *OrderLedger,
	users UserFinder,
	codec *paytoken.Codec,
	gateway strategy.PaymentStrategy,
	recorder CallbackRecorder,
	log *zap.Logger,
	cfg Config,
	opts ...Option,
) PaymentService {
	s := &paymentService{
		ledger:   ledger,
		users:    users,
		codec:    codec,
		gateway:  gateway,
		recorder: recorder,
		log:      log,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitPayment 发起支付
func (s *paymentService) InitPayment(ctx context.Context, in InitPaymentInput) (*InitPaymentResult, error) {
	// 1. 参数校验，一次列出所有缺失字段
	var missing []string
	if model.IsBlank(in.Items) {
		missing = append(missing, "items")
	}
	if model.IsBlank(in.TotalPrice) {
		missing = append(missing, "totalPrice")
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		s.metrics.RecordPaymentInit("invalid")
		return nil, apperr.Validation(msgMissingFields + strings.Join(missing, ", "))
	}

	productInfo, itemCount, err := model.ParseItems(in.Items)
	if err != nil {
		s.metrics.RecordPaymentInit("invalid")
		return nil, apperr.Validation(err.Error())
	}
	priceText, amount, err := model.ParsePrice(in.TotalPrice)
	if err != nil {
		s.metrics.RecordPaymentInit("invalid")
		return nil, apperr.Validation(err.Error())
	}

	// 2. 查询用户
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userService.ErrUserNotFound) {
			s.metrics.RecordPaymentInit("forbidden")
			return nil, apperr.Forbidden(msgNotAllowed)
		}
		s.metrics.RecordPaymentInit("error")
		return nil, err
	}

	// 3. 加锁削减同一秒内的重复提交，失败时由唯一索引兜底
	release := s.lock(ctx, fmt.Sprintf("payment:init:%s:%s:%d", user.ID, priceText, itemCount))
	defer release()

	// 4. 查找或创建订单
	order, err := s.ledger.ResolveOrCreate(ctx, Purchase{
		UserID:      user.ID,
		Email:       email,
		TotalPrice:  priceText,
		Amount:      amount,
		ProductInfo: productInfo,
		ItemCount:   itemCount,
	})
	if err != nil {
		s.metrics.RecordPaymentInit("error")
		return nil, err
	}

	if order.IsPaid() {
		s.metrics.RecordPaymentInit("conflict")
		return nil, apperr.Conflict(msgAlreadyPaid)
	}

	// 5. 签发令牌
	rawToken, err := s.codec.Issue(order.ID)
	if err != nil {
		s.metrics.RecordPaymentInit("error")
		return nil, err
	}
	token := url.QueryEscape(rawToken)

	// 6. 生成网关参数与签名
	params, err := s.gateway.Pay(strategy.PayRequest{
		TxnID:       order.TxnID,
		Amount:      priceText,
		ProductInfo: productInfo,
		FirstName:   user.FirstName,
		Email:       user.Email,
		Phone:       user.Phone,
		SuccessURL:  s.successURL(token),
		FailureURL:  s.failureURL(),
	})
	if err != nil {
		s.metrics.RecordPaymentInit("error")
		return nil, err
	}

	s.metrics.RecordPaymentInit("created")
	s.log.Info("Payment initiated",
		zap.String("order_id", order.ID),
		zap.String("txn_id", order.TxnID),
		zap.String("user_id", user.ID),
	)

	return &InitPaymentResult{
		OrderID:       order.ID,
		TxnID:         order.TxnID,
		Token:         token,
		Hash:          params.Hash,
		PaymentParams: params,
	}, nil
}

// lock 返回释放函数，Redis 不可用时降级为无锁
func (s *paymentService) lock(ctx context.Context, key string) func() {
	if s.locker == nil {
		return func() {}
	}

	lk, err := s.locker.Obtain(ctx, key, s.cfg.LockTTL, lockWait)
	if err != nil {
		s.log.Warn("Init lock unavailable, relying on unique index",
			zap.String("key", key),
			zap.Error(err),
		)
		return func() {}
	}

	return func() {
		if err := lk.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("Failed to release init lock", zap.String("key", key), zap.Error(err))
		}
	}
}

// HandleSuccessCallback 处理网关成功回跳
func (s *paymentService) HandleSuccessCallback(ctx context.Context, token string, params url.Values) (string, error) {
	redirect, err := s.confirm(ctx, token, params)
	if err != nil {
		s.metrics.RecordPaymentCallback("rejected")
		return "", err
	}
	s.metrics.RecordPaymentCallback("success")
	return redirect, nil
}

func (s *paymentService) confirm(ctx context.Context, token string, params url.Values) (string, error) {
	// 1. 令牌校验
	if token == "" {
		return "", apperr.BadRequest(msgCallbackNoToken)
	}
	ref, err := s.codec.Verify(token)
	if err != nil {
		s.log.Warn("Callback token rejected", zap.Error(err))
		return "", apperr.Unauthorized(msgCallbackToken, err)
	}

	// 2. 解析回调数据
	n, err := s.gateway.Notify(params)
	if err != nil {
		return "", apperr.Wrap(apperr.KindBadRequest, msgCallbackData, err)
	}
	s.record(model.CallbackOutcomeSuccess, n.TxnID, n.Status, params)

	if n.TxnID == "" || !strings.EqualFold(n.Status, gatewayStatusSuccess) {
		return "", apperr.BadRequest(msgCallbackData)
	}

	// 3. 回调交易号必须属于令牌对应的订单
	order, err := s.ledger.FindByID(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			s.log.Warn("Callback token references unknown order", zap.String("order_id", ref))
			return "", apperr.Wrap(apperr.KindBadRequest, msgCallbackData, err)
		}
		s.log.Error("Payment confirmation failed", zap.String("order_id", ref), zap.Error(err))
		return "", apperr.Internal(msgCallbackFailed, err)
	}
	if order.TxnID != n.TxnID {
		s.log.Warn("Callback txnid does not match token order",
			zap.String("order_id", ref),
			zap.String("order_txn_id", order.TxnID),
			zap.String("callback_txn_id", n.TxnID),
		)
		return "", apperr.BadRequest(msgCallbackData)
	}

	// 4. 更新订单状态
	if err := s.ledger.MarkSuccess(ctx, n.TxnID); err != nil {
		s.log.Error("Payment confirmation failed",
			zap.String("txn_id", n.TxnID),
			zap.String("gateway_ref", n.GatewayRef),
			zap.Error(err),
		)
		return "", apperr.Internal(msgCallbackFailed, err)
	}

	s.log.Info("Payment confirmed", zap.String("txn_id", n.TxnID))
	return s.cfg.FrontendURL + "/payment/success?token=" + url.QueryEscape(token), nil
}

// HandleFailureCallback 记录失败回跳并返回前端失败页
func (s *paymentService) HandleFailureCallback(ctx context.Context, params url.Values) string {
	n, err := s.gateway.Notify(params)
	if err == nil {
		s.record(model.CallbackOutcomeFailure, n.TxnID, n.Status, params)
		s.log.Info("Payment failed at gateway", zap.String("txn_id", n.TxnID), zap.String("status", n.Status))
	}
	s.metrics.RecordPaymentCallback("failure")
	return s.cfg.FrontendURL + "/payment/failure"
}

// record 异步写入回调审计，不影响主流程
func (s *paymentService) record(outcome, txnID, status string, params url.Values) {
	if s.recorder == nil {
		return
	}

	metadata, _ := json.Marshal(params)
	s.recorder.AddTask(worker.CallbackTask{
		Callback: &model.PaymentCallback{
			TxnID:    txnID,
			Outcome:  outcome,
			Status:   status,
			Metadata: metadata,
		},
	})
}

// VerifyPayment 前端凭令牌查询订单
func (s *paymentService) VerifyPayment(ctx context.Context, token string) (*model.Order, error) {
	if token == "" {
		return nil, apperr.BadRequest(msgVerifyNoToken)
	}

	ref, err := s.codec.Verify(token)
	if err != nil {
		if errors.Is(err, paytoken.ErrMissingReference) {
			return nil, apperr.BadRequest(msgVerifyNoTxn)
		}
		return nil, apperr.Unauthorized(msgVerifyToken, err)
	}

	order, err := s.ledger.FindByID(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, apperr.NotFound(msgVerifyNoOrder)
		}
		return nil, err
	}
	return order, nil
}

// DummyPayment 固定参数的沙箱联调数据
func (s *paymentService) DummyPayment() (*InitPaymentResult, error) {
	const token = "dummytoken123"
	txnID := "dummy_txn_" + strconv.FormatInt(s.now().UnixMilli(), 10)

	params, err := s.gateway.Pay(strategy.PayRequest{
		TxnID:       txnID,
		Amount:      "1.00",
		ProductInfo: `[{"name":"Test Product","qty":1}]`,
		FirstName:   "DummyUser",
		Email:       "dummy@example.com",
		SuccessURL:  s.successURL(token),
		FailureURL:  s.failureURL(),
	})
	if err != nil {
		return nil, err
	}

	return &InitPaymentResult{
		OrderID:       "123456",
		TxnID:         txnID,
		Token:         token,
		Hash:          params.Hash,
		PaymentParams: params,
	}, nil
}

func (s *paymentService) successURL(escapedToken string) string {
	return s.cfg.BaseURL + "/user/payment/success?token=" + escapedToken
}

func (s *paymentService) failureURL() string {
	return s.cfg.BaseURL + "/payment/fail"
}
