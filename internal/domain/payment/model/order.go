package model

import (
	"encoding/json"
	"time"

	baseModel "payflow/pkg/model"

	"github.com/shopspring/decimal"
)

// Order 订单模型
// (user_id, order_key) 唯一，保证同一购买意图只落一条订单
type Order struct {
	baseModel.BaseModel
	OrderKey    string          `gorm:"not null;uniqueIndex:idx_orders_user_order_key,priority:2" json:"orderKey"`
	TxnID       string          `gorm:"column:txn_id;not null;uniqueIndex" json:"txnId"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	ProductInfo json.RawMessage `gorm:"type:jsonb" json:"productInfo"`
	Status      string          `gorm:"not null;default:'PENDING'" json:"status"` // PENDING, SUCCESS
	UserID      string          `gorm:"type:uuid;not null;uniqueIndex:idx_orders_user_order_key,priority:1" json:"userId"`
	PaidAt      *time.Time      `json:"paidAt,omitempty"`
}

const (
	OrderStatusPending = "PENDING"
	OrderStatusSuccess = "SUCCESS"
)

// IsPaid 订单是否已支付
func (o *Order) IsPaid() bool {
	return o.Status == OrderStatusSuccess
}
