package stellar

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAddress 账户地址格式或校验和无效
	ErrInvalidAddress = errors.New("invalid stellar address")
	// ErrInvalidTransaction 交易 XDR 无法解析
	ErrInvalidTransaction = errors.New("invalid transaction envelope")
	// ErrProductionDisabled 生产网络禁用的调试操作
	ErrProductionDisabled = errors.New("operation disabled on the public network")
)

// InvalidKeyError 私钥无法解析，消息中不包含任何密钥内容
type InvalidKeyError struct{}

func (e *InvalidKeyError) Error() string {
	return "invalid secret key"
}

// AccountNotFoundError 账户在网络上不存在（未激活）
type AccountNotFoundError struct {
	Address string
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("account %s not found on the network", MaskAddress(e.Address))
}

// InsufficientReserveError 账户余额低于发起交易的最低要求
type InsufficientReserveError struct {
	Address string
	Balance decimal.Decimal
	Minimum decimal.Decimal
}

func (e *InsufficientReserveError) Error() string {
	return fmt.Sprintf("account %s balance %s is below the transaction minimum %s",
		MaskAddress(e.Address), e.Balance.String(), e.Minimum.String())
}

// KeyMismatchError 签名密钥与交易源账户不一致
type KeyMismatchError struct {
	Expected string
	Actual   string
}

func (e *KeyMismatchError) Error() string {
	return fmt.Sprintf("signing key %s does not match transaction source %s",
		MaskAddress(e.Actual), MaskAddress(e.Expected))
}

// SubmissionRejectedError 网络拒绝交易
type SubmissionRejectedError struct {
	ResultCode     string
	OperationCodes []string
}

func (e *SubmissionRejectedError) Error() string {
	if len(e.OperationCodes) > 0 {
		return fmt.Sprintf("transaction rejected: %s (%s)", e.ResultCode, strings.Join(e.OperationCodes, ","))
	}
	return fmt.Sprintf("transaction rejected: %s", e.ResultCode)
}

// NetworkError 与网络通信失败
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("stellar %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
