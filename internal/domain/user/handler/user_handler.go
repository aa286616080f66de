package handler

import (
	"net/http"

	"payflow/internal/domain/user/service"
	"payflow/internal/pkg/middleware"
	"payflow/pkg/response"
	"payflow/pkg/utils"

	"github.com/gin-gonic/gin"
)

// UserHandler 用户处理器
type UserHandler struct {
	service service.UserService
}

// NewUserHandler 创建处理器
func NewUserHandler(service service.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// RegisterInput 注册输入
type RegisterInput struct {
	FirstName   string `json:"firstName" binding:"required"`
	LastName    string `json:"lastName" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	Phone       string `json:"phone" binding:"required"`
	Address     string `json:"address"`
	UseLocation bool   `json:"useLocation"`
}

// LoginInput 登录输入
type LoginInput struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register 处理注册请求
func (h *UserHandler) Register(c *gin.Context) {
	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.Register(c.Request.Context(), service.RegisterInput{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Password:  input.Password,
		Phone:     input.Phone,
		Address:   input.Address,
	})
	if err != nil {
		_ = c.Error(err)
		response.Fail(c, err)
		return
	}

	response.Success(c, user)
}

// Login 处理登录请求
func (h *UserHandler) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Login(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		_ = c.Error(err)
		response.Fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"token":     result.Token,
		"expiresAt": result.ExpiresAt,
		"user":      result.User,
		"redirect":  c.DefaultQuery("redirect", "/"),
	})
}

// TokenVerify 返回当前会话的 Claims
func (h *UserHandler) TokenVerify(c *gin.Context) {
	claims, ok := c.Get(middleware.ContextClaims)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "User not found")
		return
	}

	sc := claims.(*utils.Claims)
	response.Success(c, gin.H{
		"sub":   sc.Subject,
		"email": sc.Email,
		"exp":   sc.ExpiresAt,
	})
}
