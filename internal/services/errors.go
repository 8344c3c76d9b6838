package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUsageLogNotFound     = errors.New("usage log not found")
	ErrTxAlreadyAttached    = errors.New("transaction reference already attached")
	ErrInvalidTxHash        = errors.New("invalid transaction hash")
	ErrInvalidPeriod        = errors.New("invalid period")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrAmountTooHigh        = errors.New("amount exceeds top-up limit")
)

// BalanceSource 余额来源
type BalanceSource string

const (
	SourceOffchain BalanceSource = "offchain"
	SourceLedger   BalanceSource = "ledger"
)

// InsufficientBalanceError 余额不足
type InsufficientBalanceError struct {
	Required decimal.Decimal
	Current  decimal.Decimal
	Deficit  decimal.Decimal
	Asset    string
	Source   BalanceSource
}

// NewInsufficientBalanceError 根据需要金额和当前余额构造错误
func NewInsufficientBalanceError(required, current decimal.Decimal, asset string, source BalanceSource) *InsufficientBalanceError {
	return &InsufficientBalanceError{
		Required: required,
		Current:  current,
		Deficit:  required.Sub(current),
		Asset:    asset,
		Source:   source,
	}
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: required %s %s, current %s %s",
		e.Source, e.Required.String(), e.Asset, e.Current.String(), e.Asset)
}

// InvalidInputError 请求参数校验失败，未产生任何副作用
type InvalidInputError struct {
	Code    string
	Message string
}

func (e *InvalidInputError) Error() string {
	return e.Message
}

// AIUnavailableError 所有AI提供商都失败
type AIUnavailableError struct {
	Refunded bool
	Err      error
}

func (e *AIUnavailableError) Error() string {
	return fmt.Sprintf("AI service unavailable: %v", e.Err)
}

func (e *AIUnavailableError) Unwrap() error {
	return e.Err
}

// LedgerUnavailableError 账本网络不可达
type LedgerUnavailableError struct {
	Err error
}

func (e *LedgerUnavailableError) Error() string {
	return fmt.Sprintf("ledger network unavailable: %v", e.Err)
}

func (e *LedgerUnavailableError) Unwrap() error {
	return e.Err
}
