package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payflow/internal/domain/payment/model"
	"payflow/internal/domain/payment/repository"
	"payflow/pkg/database"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrOrderNotFound 订单不存在
var ErrOrderNotFound = errors.New("order not found")

// Purchase 已校验的购买请求
type Purchase struct {
	UserID      string
	Email       string
	TotalPrice  string // 调用方提交的金额原文
	Amount      decimal.Decimal
	ProductInfo string // 紧凑 JSON
	ItemCount   int
}

// OrderLedger 订单账本：幂等创建与一次性状态迁移
type OrderLedger struct {
	repo repository.PaymentRepository
	exec *database.Executor
	log  *zap.Logger
	now  func() time.Time
}

func NewOrderLedger(repo repository.PaymentRepository, exec *database.Executor, log *zap.Logger) *OrderLedger {
	return &OrderLedger{repo: repo, exec: exec, log: log, now: time.Now}
}

// ResolveOrCreate 查找同一秒内相同购买意图的订单，不存在则创建 PENDING 订单
func (l *OrderLedger) ResolveOrCreate(ctx context.Context, p Purchase) (*model.Order, error) {
	now := l.now()
	orderKey := OrderKey(p.Email, p.TotalPrice, p.ItemCount, now)

	// 1. 查找已有订单
	order, err := l.find(ctx, p.UserID, orderKey)
	if err != nil || order != nil {
		return order, err
	}

	// 2. 创建新订单
	order = &model.Order{
		OrderKey:    orderKey,
		TxnID:       TxnID(orderKey, now),
		Amount:      p.Amount,
		ProductInfo: json.RawMessage(p.ProductInfo),
		Status:      model.OrderStatusPending,
		UserID:      p.UserID,
	}
	_, err = database.Execute(ctx, l.exec, func(ctx context.Context) (struct{}, error) {
		err := l.repo.CreateOrder(ctx, order)
		if errors.Is(err, repository.ErrDuplicateOrder) {
			return struct{}{}, database.Permanent(err)
		}
		return struct{}{}, err
	}, database.WithTag("order.create"))
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, repository.ErrDuplicateOrder) {
		return nil, err
	}

	// 3. 并发请求抢先创建，读取胜出的那一条
	l.log.Info("Concurrent order creation, reusing existing order",
		zap.String("user_id", p.UserID),
		zap.String("order_key", orderKey),
	)
	winner, err := l.find(ctx, p.UserID, orderKey)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return nil, fmt.Errorf("order %s conflicts on txn id %s: %w", orderKey, order.TxnID, repository.ErrDuplicateOrder)
	}
	return winner, nil
}

// find 未找到时返回 nil, nil
func (l *OrderLedger) find(ctx context.Context, userID, orderKey string) (*model.Order, error) {
	return database.Execute(ctx, l.exec, func(ctx context.Context) (*model.Order, error) {
		order, err := l.repo.FindByUserAndKey(ctx, userID, orderKey)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return order, err
	}, database.WithTag("order.find"))
}

// MarkSuccess PENDING -> SUCCESS，重复回调为空操作
func (l *OrderLedger) MarkSuccess(ctx context.Context, txnID string) error {
	affected, err := database.Execute(ctx, l.exec, func(ctx context.Context) (int64, error) {
		return l.repo.MarkSuccess(ctx, txnID, l.now())
	}, database.WithTag("order.mark_success"))
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	// 未更新任何行：已支付或订单不存在
	order, err := database.Execute(ctx, l.exec, func(ctx context.Context) (*model.Order, error) {
		order, err := l.repo.FindByTxnID(ctx, txnID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, database.Permanent(ErrOrderNotFound)
		}
		return order, err
	}, database.WithTag("order.find_txn"))
	if err != nil {
		return err
	}

	if order.IsPaid() {
		l.log.Info("Duplicate success callback ignored", zap.String("txn_id", txnID))
		return nil
	}
	return fmt.Errorf("order %s left in status %s", txnID, order.Status)
}

// FindByID 按订单 ID 查询
func (l *OrderLedger) FindByID(ctx context.Context, id string) (*model.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrOrderNotFound
	}

	return database.Execute(ctx, l.exec, func(ctx context.Context) (*model.Order, error) {
		order, err := l.repo.FindByID(ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, database.Permanent(ErrOrderNotFound)
		}
		return order, err
	}, database.WithTag("order.find_id"))
}
