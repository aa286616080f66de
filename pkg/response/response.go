package response

import (
	"net/http"

	"payflow/internal/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
// 成功: {success: true, data}
// 失败: {success: false, message, statusCode}
type Response struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	StatusCode int         `json:"statusCode,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, httpCode int, msg string) {
	c.JSON(httpCode, Response{
		Success:    false,
		Message:    msg,
		StatusCode: httpCode,
	})
}

// Fail 根据错误分类输出响应，内部错误只返回通用提示
func Fail(c *gin.Context, err error) {
	Error(c, apperr.HTTPStatus(err), apperr.PublicMessage(err))
}
