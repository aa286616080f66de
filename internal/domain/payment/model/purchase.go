package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrItemsNotList = errors.New("items must be a list")
	ErrInvalidPrice = errors.New("totalPrice must be a positive number")
)

// IsBlank 判断原始 JSON 字段是否缺失
func IsBlank(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte(`""`))
}

// ParseItems 解析商品列表，返回紧凑 JSON（保留字段顺序）与商品数量
func ParseItems(raw json.RawMessage) (string, int, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return "", 0, ErrItemsNotList
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", 0, ErrItemsNotList
	}
	return buf.String(), len(list), nil
}

// ParsePrice 解析金额，接受 JSON 数字或数字字符串
// 返回调用方提交的原始文本（用于签名与订单键）以及数值
func ParsePrice(raw json.RawMessage) (string, decimal.Decimal, error) {
	text := strings.TrimSpace(string(raw))

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		text = strings.TrimSpace(s)
	}

	d, err := decimal.NewFromString(text)
	if err != nil || !d.IsPositive() {
		return "", decimal.Zero, ErrInvalidPrice
	}
	return text, d, nil
}
