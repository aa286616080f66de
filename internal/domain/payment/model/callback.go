package model

import (
	"encoding/json"

	baseModel "payflow/pkg/model"
)

// PaymentCallback 网关回调审计记录，仅追加
type PaymentCallback struct {
	baseModel.BaseModel
	TxnID    string          `gorm:"column:txn_id;index" json:"txnId"`
	Outcome  string          `gorm:"not null" json:"outcome"` // success, failure
	Status   string          `json:"status"`                  // 网关上报的原始状态
	Metadata json.RawMessage `gorm:"type:jsonb" json:"metadata"`
}

const (
	CallbackOutcomeSuccess = "success"
	CallbackOutcomeFailure = "failure"
)
