package service

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf16"
)

const (
	shortTimestampLayout = "060102150405"
	txnIDPrefix          = "txn_"
	txnIDDigits          = 8
)

// ShortTimestamp 秒级时间戳 YYMMDDhhmmss，使用本地时区
func ShortTimestamp(t time.Time) string {
	return t.Format(shortTimestampLayout)
}

// OrderKey 订单幂等键，同一秒内相同的购买请求得到相同的键
func OrderKey(email, totalPrice string, itemCount int, t time.Time) string {
	return fmt.Sprintf("%s-%s-%d-%s", email, totalPrice, itemCount, ShortTimestamp(t))
}

// TxnID 网关交易号：txn_ + (订单键字符码之和 拼接 毫秒时间戳) 的末 8 位
func TxnID(orderKey string, t time.Time) string {
	var sum int
	for _, u := range utf16.Encode([]rune(orderKey)) {
		sum += int(u)
	}

	digits := strconv.Itoa(sum) + strconv.FormatInt(t.UnixMilli(), 10)
	if len(digits) > txnIDDigits {
		digits = digits[len(digits)-txnIDDigits:]
	}
	return txnIDPrefix + digits
}
