package apperr

import (
	"context"
	"errors"
	"net/http"
)

// Kind 错误分类
type Kind string

const (
	KindValidation     Kind = "validation"
	KindBadRequest     Kind = "bad_request"
	KindUnauthorized   Kind = "unauthorized"
	KindForbidden      Kind = "forbidden"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindQueryExhausted Kind = "query_exhausted"
	KindTimeout        Kind = "timeout"
	KindInternal       Kind = "internal"
)

// 对外暴露的通用提示，内部细节只写日志
const (
	msgInternal    = "Internal server error"
	msgUnavailable = "Service is temporarily unavailable. Please try again shortly."
)

var kindToStatus = map[Kind]int{
	KindValidation:     http.StatusBadRequest,
	KindBadRequest:     http.StatusBadRequest,
	KindUnauthorized:   http.StatusUnauthorized,
	KindForbidden:      http.StatusForbidden,
	KindNotFound:       http.StatusNotFound,
	KindConflict:       http.StatusConflict,
	KindQueryExhausted: http.StatusServiceUnavailable,
	KindTimeout:        http.StatusGatewayTimeout,
	KindInternal:       http.StatusInternalServerError,
}

// kinder is satisfied by errors that carry a classification kind.
type kinder interface {
	ErrorKind() string
}

// Error 业务错误，Message 可直接返回给调用方
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorKind 实现 kinder
func (e *Error) ErrorKind() string {
	return string(e.Kind)
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *Error { return New(KindValidation, message) }

func BadRequest(message string) *Error { return New(KindBadRequest, message) }

func Unauthorized(message string, err error) *Error { return Wrap(KindUnauthorized, message, err) }

func Forbidden(message string) *Error { return New(KindForbidden, message) }

func NotFound(message string) *Error { return New(KindNotFound, message) }

func Conflict(message string) *Error { return New(KindConflict, message) }

func Internal(message string, err error) *Error { return Wrap(KindInternal, message, err) }

// KindOf 返回错误分类，未分类的错误视为 internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k kinder
	if errors.As(err, &k) {
		return Kind(k.ErrorKind())
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}

// HTTPStatus 错误分类到 HTTP 状态码的映射
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if s, ok := kindToStatus[KindOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// PublicMessage 返回可以展示给用户的错误信息
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	switch KindOf(err) {
	case KindQueryExhausted, KindTimeout:
		return msgUnavailable
	default:
		return msgInternal
	}
}
