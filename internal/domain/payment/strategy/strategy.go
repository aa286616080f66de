package strategy

import "net/url"

// PayRequest 发起支付所需的订单信息
type PayRequest struct {
	TxnID       string
	Amount      string // 原样参与签名，不做格式化
	ProductInfo string
	FirstName   string
	Email       string
	Phone       string
	SuccessURL  string
	FailureURL  string
}

// PayParams 提交给网关表单的参数
type PayParams struct {
	Key         string `json:"key"`
	TxnID       string `json:"txnid"`
	Amount      string `json:"amount"`
	ProductInfo string `json:"productinfo"`
	FirstName   string `json:"firstname"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	SuccessURL  string `json:"surl"`
	FailureURL  string `json:"furl"`
	Hash        string `json:"hash"`
}

// Notification 解析后的网关回调
type Notification struct {
	TxnID      string
	Status     string
	GatewayRef string
}

type PaymentStrategy interface {
	// Pay 生成带签名的网关提交参数
	Pay(req PayRequest) (*PayParams, error)

	// Notify 解析回调参数，不做业务判断
	Notify(params url.Values) (*Notification, error)
}
