package repository

import (
	"context"
	"errors"
	"time"

	"payflow/internal/domain/payment/model"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// ErrDuplicateOrder 违反 (user_id, order_key) 或 txn_id 唯一约束
var ErrDuplicateOrder = errors.New("order already exists")

type PaymentRepository interface {
	FindByUserAndKey(ctx context.Context, userID, orderKey string) (*model.Order, error)
	FindByID(ctx context.Context, id string) (*model.Order, error)
	FindByTxnID(ctx context.Context, txnID string) (*model.Order, error)
	CreateOrder(ctx context.Context, order *model.Order) error
	// MarkSuccess 仅当订单处于 PENDING 时更新，返回受影响行数
	MarkSuccess(ctx context.Context, txnID string, paidAt time.Time) (int64, error)
	CreateCallback(ctx context.Context, cb *model.PaymentCallback) error
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) FindByUserAndKey(ctx context.Context, userID, orderKey string) (*model.Order, error) {
	var order model.Order
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND order_key = ?", userID, orderKey).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *paymentRepository) FindByID(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *paymentRepository) FindByTxnID(ctx context.Context, txnID string) (*model.Order, error) {
	var order model.Order
	if err := r.db.WithContext(ctx).Where("txn_id = ?", txnID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *paymentRepository) CreateOrder(ctx context.Context, order *model.Order) error {
	err := r.db.WithContext(ctx).Create(order).Error
	if isUniqueViolation(err) {
		return ErrDuplicateOrder
	}
	return err
}

func (r *paymentRepository) MarkSuccess(ctx context.Context, txnID string, paidAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&model.Order{}).
		Where("txn_id = ? AND status = ?", txnID, model.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":  model.OrderStatusSuccess,
			"paid_at": paidAt,
		})
	return result.RowsAffected, result.Error
}

func (r *paymentRepository) CreateCallback(ctx context.Context, cb *model.PaymentCallback) error {
	return r.db.WithContext(ctx).Create(cb).Error
}

// isUniqueViolation 兼容开启与未开启 TranslateError 两种情况
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
