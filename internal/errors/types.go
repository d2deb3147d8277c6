package errors

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 验证错误
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeDimensionMismatch ErrorCode = "DIMENSION_MISMATCH"

	// 业务逻辑错误
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeInvalidState     ErrorCode = "INVALID_STATE"

	// 外部服务错误
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"

	// 索引错误
	ErrCodeIndexCorruption ErrorCode = "INDEX_CORRUPTION"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeValidation ErrorType = iota
	ErrorTypeNotFound
	ErrorTypeExternal
	ErrorTypeCorruption
)

// AppError 应用错误结构体
type AppError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Type    ErrorType   `json:"type"`
	Details interface{} `json:"details,omitempty"`
	Cause   error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidationFailed,
		Message: message,
		Type:    ErrorTypeValidation,
	}
}

// NewDimensionMismatchError 创建向量维度不匹配错误
func NewDimensionMismatchError(expected, got int) *AppError {
	return &AppError{
		Code:    ErrCodeDimensionMismatch,
		Message: fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", expected, got),
		Type:    ErrorTypeValidation,
	}
}

// NewNotFoundError 创建资源未找到错误
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeResourceNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Type:    ErrorTypeNotFound,
	}
}

// NewBackendUnavailableError 创建后端服务不可用错误
func NewBackendUnavailableError(backend string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeBackendUnavailable,
		Message: fmt.Sprintf("%s backend unavailable", backend),
		Type:    ErrorTypeExternal,
		Cause:   cause,
	}
}

// NewIndexCorruptionError 创建索引损坏错误
func NewIndexCorruptionError(path string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeIndexCorruption,
		Message: fmt.Sprintf("persisted index at %s is unreadable", path),
		Type:    ErrorTypeCorruption,
		Cause:   cause,
	}
}

// IsDimensionMismatch 检查是否为维度不匹配错误
func IsDimensionMismatch(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeDimensionMismatch
	}
	return false
}

// IsNotFound 检查是否为资源未找到错误
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeNotFound
	}
	return false
}

// IsValidation 检查是否为验证错误
func IsValidation(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeValidation
	}
	return false
}

// IsBackendUnavailable 检查是否为后端服务不可用错误
func IsBackendUnavailable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == ErrorTypeExternal
	}
	return false
}

// GetAppError 获取AppError，如果不是则包装为后端错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewBackendUnavailableError("internal", err)
}
