// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 稳定的机器可读错误码
type ErrorCode string

// 预定义错误码
const (
	// 输入校验类：立即失败，不重试，不落盘
	CodeValidation ErrorCode = "VALIDATION_ERROR"

	// 资源缺失类
	CodeBookNotFound    ErrorCode = "BOOK_NOT_FOUND"
	CodeChapterNotFound ErrorCode = "CHAPTER_NOT_FOUND"
	CodeSnippetNotFound ErrorCode = "SNIPPET_NOT_FOUND"

	// 冲突类：状态不满足前置条件
	CodeNoActiveBook            ErrorCode = "NO_ACTIVE_BOOK"
	CodeOutlineMissing          ErrorCode = "OUTLINE_MISSING"
	CodeChapterAlreadyExists    ErrorCode = "CHAPTER_ALREADY_EXISTS"
	CodeOutlineChaptersNotFound ErrorCode = "OUTLINE_CHAPTERS_NOT_FOUND"

	// 生成能力类
	CodeLLMUnavailable     ErrorCode = "LLM_UNAVAILABLE"
	CodeLLMConnectionError ErrorCode = "LLM_CONNECTION_ERROR"

	// 存储类：本回合致命
	CodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"

	CodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AppError 应用错误，携带机器码与人类可读消息
type AppError struct {
	Code       ErrorCode      `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails 附加结构化详情
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithError 附加底层错误
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeBookNotFound, CodeChapterNotFound, CodeSnippetNotFound:
		return http.StatusNotFound
	case CodeNoActiveBook, CodeOutlineMissing, CodeChapterAlreadyExists, CodeOutlineChaptersNotFound:
		return http.StatusConflict
	case CodeLLMUnavailable, CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case CodeLLMConnectionError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsCode 判断错误链上是否存在该错误码的 AppError
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// AsAppError 将任意错误规约为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeInternal, "internal error")
}
