package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"payflow/internal/domain/payment/model"
	"payflow/internal/domain/payment/service"
	"payflow/internal/pkg/apperr"
	"payflow/internal/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPaymentService is a mock of service.PaymentService
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) InitPayment(ctx context.Context, in service.InitPaymentInput) (*service.InitPaymentResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.InitPaymentResult), args.Error(1)
}

func (m *MockPaymentService) HandleSuccessCallback(ctx context.Context, token string, params url.Values) (string, error) {
	args := m.Called(ctx, token, params)
	return args.String(0), args.Error(1)
}

func (m *MockPaymentService) HandleFailureCallback(ctx context.Context, params url.Values) string {
	args := m.Called(ctx, params)
	return args.String(0)
}

func (m *MockPaymentService) VerifyPayment(ctx context.Context, token string) (*model.Order, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockPaymentService) DummyPayment() (*service.InitPaymentResult, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.InitPaymentResult), args.Error(1)
}

func setupRouter(h *PaymentHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/user/auth/payment", h.InitPayment)
	r.POST("/user/payment/success", h.PaymentSuccess)
	r.Any("/payment/fail", h.PaymentFail)
	r.POST("/user/verify-payment", h.VerifyPayment)
	r.POST("/user/auth/dummy/payment", h.DummyPayment)
	return r
}

// setupSessionRouter 模拟已登录会话
func setupSessionRouter(h *PaymentHandler, email string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/user/auth/payment", func(c *gin.Context) {
		c.Set(middleware.ContextEmail, email)
		c.Next()
	}, h.InitPayment)
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestInitPayment(t *testing.T) {
	t.Run("Passes raw body fields to service", func(t *testing.T) {
		svc := new(MockPaymentService)
		r := setupRouter(NewPaymentHandler(svc))

		svc.On("InitPayment", mock.Anything, mock.MatchedBy(func(in service.InitPaymentInput) bool {
			return string(in.Items) == `[{"sku":"A"}]` && string(in.TotalPrice) == `100.5` && in.Email == "u@x.com"
		})).Return(&service.InitPaymentResult{OrderID: "o1", TxnID: "txn_12345678", Hash: "abc"}, nil)

		body := `{"items":[{"sku":"A"}],"totalPrice":100.5,"email":"u@x.com"}`
		req := httptest.NewRequest(http.MethodPost, "/user/auth/payment", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decode(t, w)
		assert.Equal(t, true, resp["success"])
		data := resp["data"].(map[string]interface{})
		assert.Equal(t, "txn_12345678", data["txnId"])
		svc.AssertExpectations(t)
	})

	t.Run("Maps service error to status", func(t *testing.T) {
		svc := new(MockPaymentService)
		r := setupRouter(NewPaymentHandler(svc))
		svc.On("InitPayment", mock.Anything, mock.Anything).Return(nil, apperr.Conflict("This order has already been paid."))

		req := httptest.NewRequest(http.MethodPost, "/user/auth/payment", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decode(t, w)
		assert.Equal(t, false, resp["success"])
		assert.Equal(t, "This order has already been paid.", resp["message"])
		assert.Equal(t, float64(http.StatusConflict), resp["statusCode"])
	})

	t.Run("Body email must match session", func(t *testing.T) {
		svc := new(MockPaymentService)
		r := setupSessionRouter(NewPaymentHandler(svc), "owner@x.com")

		body := `{"items":[{"sku":"A"}],"totalPrice":"100.00","email":"victim@x.com"}`
		req := httptest.NewRequest(http.MethodPost, "/user/auth/payment", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, msgEmailMismatch, decode(t, w)["message"])
		svc.AssertNotCalled(t, "InitPayment", mock.Anything, mock.Anything)
	})

	t.Run("Session email matches case-insensitively", func(t *testing.T) {
		svc := new(MockPaymentService)
		r := setupSessionRouter(NewPaymentHandler(svc), "owner@x.com")
		svc.On("InitPayment", mock.Anything, mock.MatchedBy(func(in service.InitPaymentInput) bool {
			return in.Email == "Owner@X.com"
		})).Return(&service.InitPaymentResult{OrderID: "o1"}, nil)

		body := `{"items":[{"sku":"A"}],"totalPrice":"100.00","email":"Owner@X.com"}`
		req := httptest.NewRequest(http.MethodPost, "/user/auth/payment", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("Missing body email falls back to session", func(t *testing.T) {
		svc := new(MockPaymentService)
		r := setupSessionRouter(NewPaymentHandler(svc), "owner@x.com")
		svc.On("InitPayment", mock.Anything, mock.MatchedBy(func(in service.InitPaymentInput) bool {
			return in.Email == "owner@x.com"
		})).Return(&service.InitPaymentResult{OrderID: "o1"}, nil)

		body := `{"items":[{"sku":"A"}],"totalPrice":"100.00"}`
		req := httptest.NewRequest(http.MethodPost, "/user/auth/payment", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("Malformed body", func(t *testing.T) {
		svc := new(MockPaymentService)
		r := setupRouter(NewPaymentHandler(svc))

		req := httptest.NewRequest(http.MethodPost, "/user/auth/payment", strings.NewReader(`{"items":`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "InitPayment", mock.Anything, mock.Anything)
	})
}

func TestPaymentSuccess(t *testing.T) {
	t.Run("Form callback redirects", func(t *testing.T) {
		svc := new(MockPaymentService)
		r := setupRouter(NewPaymentHandler(svc))

		svc.On("HandleSuccessCallback", mock.Anything, "tok.en.sig", mock.MatchedBy(func(p url.Values) bool {
			return p.Get("txnid") == "txn_1" && p.Get("status") == "success"
		})).Return("http://front/payment/success?token=tok.en.sig", nil)

		form := url.Values{"txnid": {"txn_1"}, "status": {"success"}}
		req := httptest.NewRequest(http.MethodPost, "/user/payment/success?token=tok.en.sig", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "http://front/payment/success?token=tok.en.sig", w.Header().Get("Location"))
		svc.AssertExpectations(t)
	})

	t.Run("JSON callback", func(t *testing.T) {
		svc := new(MockPaymentService)
		r := setupRouter(NewPaymentHandler(svc))

		svc.On("HandleSuccessCallback", mock.Anything, "t", mock.MatchedBy(func(p url.Values) bool {
			return p.Get("txnid") == "txn_2" && p.Get("amount") == "100.5"
		})).Return("http://front/payment/success?token=t", nil)

		req := httptest.NewRequest(http.MethodPost, "/user/payment/success?token=t",
			bytes.NewBufferString(`{"txnid":"txn_2","status":"success","amount":100.5}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("Rejected token", func(t *testing.T) {
		svc := new(MockPaymentService)
		r := setupRouter(NewPaymentHandler(svc))
		svc.On("HandleSuccessCallback", mock.Anything, "bad", mock.Anything).
			Return("", apperr.Unauthorized("Token verification failed.", nil))

		req := httptest.NewRequest(http.MethodPost, "/user/payment/success?token=bad", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Token verification failed.", decode(t, w)["message"])
	})
}

func TestPaymentFail(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			svc := new(MockPaymentService)
			r := setupRouter(NewPaymentHandler(svc))
			svc.On("HandleFailureCallback", mock.Anything, mock.Anything).Return("http://front/payment/failure")

			req := httptest.NewRequest(method, "/payment/fail", nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, "http://front/payment/failure", w.Header().Get("Location"))
		})
	}
}

func TestVerifyPayment(t *testing.T) {
	t.Run("Returns order", func(t *testing.T) {
		svc := new(MockPaymentService)
		r := setupRouter(NewPaymentHandler(svc))
		order := &model.Order{TxnID: "txn_1", Status: model.OrderStatusSuccess}
		svc.On("VerifyPayment", mock.Anything, "tok").Return(order, nil)

		req := httptest.NewRequest(http.MethodPost, "/user/verify-payment", strings.NewReader(`{"token":"tok"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w)["data"].(map[string]interface{})
		assert.Equal(t, "txn_1", data["txnId"])
		assert.Equal(t, model.OrderStatusSuccess, data["status"])
	})

	t.Run("Empty body reaches service", func(t *testing.T) {
		svc := new(MockPaymentService)
		r := setupRouter(NewPaymentHandler(svc))
		svc.On("VerifyPayment", mock.Anything, "").Return(nil, apperr.BadRequest("Token is missing"))

		req := httptest.NewRequest(http.MethodPost, "/user/verify-payment", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Token is missing", decode(t, w)["message"])
	})
}

func TestDummyPayment(t *testing.T) {
	svc := new(MockPaymentService)
	r := setupRouter(NewPaymentHandler(svc))
	svc.On("DummyPayment").Return(&service.InitPaymentResult{OrderID: "123456", Token: "dummytoken123"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/user/auth/dummy/payment", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "dummytoken123", data["token"])
}
