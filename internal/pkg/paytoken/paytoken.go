// Package paytoken 签发与校验支付回调令牌
//
// 令牌为 HS256 JWT，载荷只携带订单引用（claim "txnid"），
// 用于把网关回跳请求关联回具体订单，有效期很短。
package paytoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL 默认有效期
const DefaultTTL = 2 * time.Minute

var (
	ErrTokenInvalid     = errors.New("payment token invalid")
	ErrTokenExpired     = errors.New("payment token expired")
	ErrMissingReference = errors.New("payment token missing order reference")
)

// Claims 支付令牌载荷
type Claims struct {
	TxnID string `json:"txnid"`
	jwt.RegisteredClaims
}

// Codec 令牌编解码器，并发安全
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Codec)

// WithClock 替换时间源（测试用）
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec 创建编解码器，ttl <= 0 时使用 DefaultTTL
func NewCodec(secret string, ttl time.Duration, opts ...Option) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL 返回令牌有效期
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue 为订单引用签发令牌
func (c *Codec) Issue(orderReference string) (string, error) {
	if orderReference == "" {
		return "", ErrMissingReference
	}

	now := c.now()
	claims := Claims{
		TxnID: orderReference,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify 校验令牌并返回订单引用
//
// 过期返回 ErrTokenExpired；签名、格式、算法错误返回 ErrTokenInvalid；
// 载荷缺少引用返回 ErrMissingReference。
func (c *Codec) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrTokenInvalid
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		// 签名末位字符的填充位必须为 0，否则不同文本会解码出相同签名
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}

	if claims.TxnID == "" {
		return "", ErrMissingReference
	}
	return claims.TxnID, nil
}
