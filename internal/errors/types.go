package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN_IN_PRODUCTION"

	// 验证错误
	ErrCodeMissingRequired   ErrorCode = "MISSING_REQUIRED_FIELDS"
	ErrCodeInvalidAddress    ErrorCode = "INVALID_STELLAR_ADDRESS"
	ErrCodeInvalidPrompt     ErrorCode = "INVALID_PROMPT"
	ErrCodePromptTooLong     ErrorCode = "PROMPT_TOO_LONG"
	ErrCodeInvalidAmount     ErrorCode = "INVALID_AMOUNT"
	ErrCodeAmountTooHigh     ErrorCode = "AMOUNT_TOO_HIGH"
	ErrCodeMissingSecretKey  ErrorCode = "MISSING_SECRET_KEY"
	ErrCodeInvalidSecretKey  ErrorCode = "INVALID_SECRET_KEY"
	ErrCodeInvalidPeriod     ErrorCode = "INVALID_PERIOD"
	ErrCodeInvalidPagination ErrorCode = "INVALID_PAGINATION"
	ErrCodeInvalidTx         ErrorCode = "INVALID_TRANSACTION"
	ErrCodeKeyMismatch       ErrorCode = "KEY_MISMATCH"

	// 业务逻辑错误
	ErrCodeInsufficientBalance  ErrorCode = "INSUFFICIENT_BALANCE"
	ErrCodeUserNotFound         ErrorCode = "USER_NOT_FOUND"
	ErrCodeAccountNotFound      ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrCodeConversationNotFound ErrorCode = "CONVERSATION_NOT_FOUND"
	ErrCodeUsageLogNotFound     ErrorCode = "USAGE_LOG_NOT_FOUND"
	ErrCodeTxAlreadyAttached    ErrorCode = "TX_ALREADY_ATTACHED"
	ErrCodeInsufficientReserve  ErrorCode = "INSUFFICIENT_RESERVE"
	ErrCodeSubmissionRejected   ErrorCode = "SUBMISSION_REJECTED"

	// 外部服务错误
	ErrCodeAIUnavailable     ErrorCode = "AI_SERVICE_UNAVAILABLE"
	ErrCodeLedgerUnavailable ErrorCode = "LEDGER_UNAVAILABLE"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code     ErrorCode   `json:"code"`
	Message  string      `json:"message"`
	Type     ErrorType   `json:"-"`
	HTTPCode int         `json:"-"`
	Details  interface{} `json:"details,omitempty"`
	Cause    error       `json:"-"`
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

// New 根据错误码创建错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     getTypeForError(code),
		HTTPCode: getHTTPCodeForError(code),
	}
}

// NewSystemError 创建系统错误
func NewSystemError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeInternal,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// NewValidationError 创建验证错误
func NewValidationError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// getHTTPCodeForError 根据错误码获取HTTP状态码
func getHTTPCodeForError(code ErrorCode) int {
	switch code {
	case ErrCodeMissingRequired, ErrCodeInvalidAddress, ErrCodeInvalidPrompt, ErrCodePromptTooLong,
		ErrCodeInvalidAmount, ErrCodeAmountTooHigh, ErrCodeMissingSecretKey, ErrCodeInvalidSecretKey,
		ErrCodeInvalidPeriod, ErrCodeInvalidPagination, ErrCodeInvalidTx, ErrCodeKeyMismatch:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeInsufficientBalance:
		return http.StatusPaymentRequired
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeUserNotFound, ErrCodeAccountNotFound, ErrCodeConversationNotFound, ErrCodeUsageLogNotFound:
		return http.StatusNotFound
	case ErrCodeTxAlreadyAttached:
		return http.StatusConflict
	case ErrCodeInsufficientReserve, ErrCodeSubmissionRejected:
		return http.StatusUnprocessableEntity
	case ErrCodeAIUnavailable, ErrCodeLedgerUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func getTypeForError(code ErrorCode) ErrorType {
	switch getHTTPCodeForError(code) {
	case http.StatusBadRequest:
		return ErrorTypeValidation
	case http.StatusServiceUnavailable:
		return ErrorTypeExternal
	case http.StatusInternalServerError:
		return ErrorTypeSystem
	default:
		return ErrorTypeBusiness
	}
}

// IsAppError 检查是否为AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return NewSystemError("Internal server error").WithCause(err)
}
