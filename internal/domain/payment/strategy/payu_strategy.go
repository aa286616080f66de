package strategy

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
)

// PayU 签名串在 email 与末尾 key 之间保留 10 个空的 udf/保留字段
// 数量取自网关实际接受的签名格式：email 与 key 之间共 11 个 "|"
const payuEmptyFields = 10

// DefaultFallbackPhone 用户未填写手机号时提交给网关的号码
const DefaultFallbackPhone = "9999999999"

var errMissingMerchantKey = errors.New("payu merchant key missing")

type PayUStrategy struct {
	merchantKey   string
	fallbackPhone string
}

func NewPayUStrategy(merchantKey, fallbackPhone string) (*PayUStrategy, error) {
	if merchantKey == "" {
		return nil, errMissingMerchantKey
	}
	if fallbackPhone == "" {
		fallbackPhone = DefaultFallbackPhone
	}
	return &PayUStrategy{merchantKey: merchantKey, fallbackPhone: fallbackPhone}, nil
}

// Hash 计算提交签名：小写十六进制 SHA-512
// key|txnid|amount|productinfo|firstname|email|||||||||||key
func Hash(key, txnID, amount, productInfo, firstName, email string) string {
	var b strings.Builder
	for _, f := range []string{key, txnID, amount, productInfo, firstName, email} {
		b.WriteString(f)
		b.WriteByte('|')
	}
	b.WriteString(strings.Repeat("|", payuEmptyFields))
	b.WriteString(key)

	sum := sha512.Sum512([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Pay 生成表单参数
func (s *PayUStrategy) Pay(req PayRequest) (*PayParams, error) {
	phone := req.Phone
	if phone == "" {
		phone = s.fallbackPhone
	}

	hash := Hash(s.merchantKey, req.TxnID, req.Amount, req.ProductInfo, req.FirstName, req.Email)

	return &PayParams{
		Key:         s.merchantKey,
		TxnID:       req.TxnID,
		Amount:      req.Amount,
		ProductInfo: req.ProductInfo,
		FirstName:   req.FirstName,
		Email:       req.Email,
		Phone:       phone,
		SuccessURL:  req.SuccessURL,
		FailureURL:  req.FailureURL,
		Hash:        hash,
	}, nil
}

// Notify 解析回调表单
func (s *PayUStrategy) Notify(params url.Values) (*Notification, error) {
	return &Notification{
		TxnID:      strings.TrimSpace(params.Get("txnid")),
		Status:     strings.TrimSpace(params.Get("status")),
		GatewayRef: params.Get("mihpayid"),
	}, nil
}
