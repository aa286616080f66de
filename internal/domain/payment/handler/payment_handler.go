package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"payflow/internal/domain/payment/service"
	"payflow/internal/pkg/middleware"
	"payflow/pkg/response"

	"github.com/gin-gonic/gin"
)

const msgEmailMismatch = "User not allowed to make payment"

type PaymentHandler struct {
	service service.PaymentService
}

func NewPaymentHandler(s service.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: s}
}

// InitPaymentInput 发起支付请求体，字段必填性由 service 统一校验
type InitPaymentInput struct {
	Items      json.RawMessage `json:"items"`
	TotalPrice json.RawMessage `json:"totalPrice"`
	Email      string          `json:"email"`
}

type VerifyPaymentInput struct {
	Token string `json:"token"`
}

// InitPayment 发起支付
func (h *PaymentHandler) InitPayment(c *gin.Context) {
	var input InitPaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	// 请求体邮箱必须与会话一致，缺省时取会话邮箱
	email := strings.TrimSpace(input.Email)
	if session := c.GetString(middleware.ContextEmail); session != "" {
		if email == "" {
			email = session
		} else if !strings.EqualFold(email, session) {
			response.Error(c, http.StatusForbidden, msgEmailMismatch)
			return
		}
	}

	result, err := h.service.InitPayment(c.Request.Context(), service.InitPaymentInput{
		Items:      input.Items,
		TotalPrice: input.TotalPrice,
		Email:      email,
	})
	if err != nil {
		_ = c.Error(err)
		response.Fail(c, err)
		return
	}

	response.Success(c, result)
}

// PaymentSuccess 网关成功回跳
// 网关以表单 POST，令牌在 query 中
func (h *PaymentHandler) PaymentSuccess(c *gin.Context) {
	// 客户端断开不应中断订单确认
	ctx := context.WithoutCancel(c.Request.Context())

	redirect, err := h.service.HandleSuccessCallback(ctx, c.Query("token"), callbackParams(c))
	if err != nil {
		_ = c.Error(err)
		response.Fail(c, err)
		return
	}

	c.Redirect(http.StatusFound, redirect)
}

// PaymentFail 网关失败回跳
func (h *PaymentHandler) PaymentFail(c *gin.Context) {
	redirect := h.service.HandleFailureCallback(context.WithoutCancel(c.Request.Context()), callbackParams(c))
	c.Redirect(http.StatusFound, redirect)
}

// VerifyPayment 前端凭令牌查询订单
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var input VerifyPaymentInput
	if err := c.ShouldBindJSON(&input); err != nil && c.Request.ContentLength > 0 {
		response.Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := h.service.VerifyPayment(c.Request.Context(), input.Token)
	if err != nil {
		_ = c.Error(err)
		response.Fail(c, err)
		return
	}

	response.Success(c, order)
}

// DummyPayment 沙箱联调参数
func (h *PaymentHandler) DummyPayment(c *gin.Context) {
	result, err := h.service.DummyPayment()
	if err != nil {
		_ = c.Error(err)
		response.Fail(c, err)
		return
	}
	response.Success(c, result)
}

// callbackParams 兼容表单与 JSON 两种回调格式
func callbackParams(c *gin.Context) url.Values {
	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			return url.Values{}
		}
		params := make(url.Values, len(body))
		for k, v := range body {
			switch val := v.(type) {
			case string:
				params.Set(k, val)
			case nil:
			default:
				b, _ := json.Marshal(val)
				params.Set(k, string(b))
			}
		}
		return params
	}

	if err := c.Request.ParseForm(); err != nil {
		return url.Values{}
	}
	return c.Request.PostForm
}
