package controllers

import (
	"errors"

	apperrors "github.com/aihub/ai-gateway/internal/errors"
	"github.com/aihub/ai-gateway/internal/services"
	"github.com/aihub/ai-gateway/internal/stellar"
)

// toAppError 将领域错误翻译为带错误码的 AppError
func toAppError(err error, production bool) *apperrors.AppError {
	var (
		appErr       *apperrors.AppError
		invalid      *services.InvalidInputError
		insufficient *services.InsufficientBalanceError
		aiErr        *services.AIUnavailableError
		ledgerErr    *services.LedgerUnavailableError
		invalidKey   *stellar.InvalidKeyError
		notFound     *stellar.AccountNotFoundError
		reserve      *stellar.InsufficientReserveError
		mismatch     *stellar.KeyMismatchError
		rejected     *stellar.SubmissionRejectedError
		networkErr   *stellar.NetworkError
	)

	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &invalid):
		return apperrors.New(apperrors.ErrorCode(invalid.Code), invalid.Message)
	case errors.As(err, &insufficient):
		return apperrors.New(apperrors.ErrCodeInsufficientBalance, "insufficient balance").
			WithDetails(map[string]interface{}{
				"required": insufficient.Required,
				"current":  insufficient.Current,
				"deficit":  insufficient.Deficit,
				"asset":    insufficient.Asset,
				"source":   insufficient.Source,
			})
	case errors.As(err, &aiErr):
		return apperrors.New(apperrors.ErrCodeAIUnavailable, "AI service temporarily unavailable").
			WithDetails(map[string]interface{}{"refunded": aiErr.Refunded}).
			WithCause(err)
	case errors.As(err, &ledgerErr), errors.As(err, &networkErr):
		return apperrors.New(apperrors.ErrCodeLedgerUnavailable, "ledger network unavailable").WithCause(err)
	case errors.As(err, &invalidKey):
		return apperrors.New(apperrors.ErrCodeInvalidSecretKey, invalidKey.Error())
	case errors.As(err, &notFound):
		return apperrors.New(apperrors.ErrCodeAccountNotFound, notFound.Error()).
			WithDetails(map[string]interface{}{"suggestion": "fund the account with at least 1 XLM to activate it"})
	case errors.As(err, &reserve):
		return apperrors.New(apperrors.ErrCodeInsufficientReserve, reserve.Error()).
			WithDetails(map[string]interface{}{"balance": reserve.Balance, "minimum": reserve.Minimum})
	case errors.As(err, &mismatch):
		return apperrors.New(apperrors.ErrCodeKeyMismatch, mismatch.Error())
	case errors.As(err, &rejected):
		return apperrors.New(apperrors.ErrCodeSubmissionRejected, rejected.Error()).
			WithDetails(map[string]interface{}{"resultCode": rejected.ResultCode, "operationCodes": rejected.OperationCodes})
	case errors.Is(err, stellar.ErrInvalidAddress):
		return apperrors.New(apperrors.ErrCodeInvalidAddress, "invalid Stellar address")
	case errors.Is(err, stellar.ErrInvalidTransaction), errors.Is(err, services.ErrInvalidTxHash):
		return apperrors.New(apperrors.ErrCodeInvalidTx, err.Error())
	case errors.Is(err, stellar.ErrProductionDisabled):
		return apperrors.New(apperrors.ErrCodeForbidden, "not available in production")
	case errors.Is(err, services.ErrUserNotFound):
		return apperrors.New(apperrors.ErrCodeUserNotFound, "user not found")
	case errors.Is(err, services.ErrConversationNotFound):
		return apperrors.New(apperrors.ErrCodeConversationNotFound, "conversation not found")
	case errors.Is(err, services.ErrUsageLogNotFound):
		return apperrors.New(apperrors.ErrCodeUsageLogNotFound, "usage log not found")
	case errors.Is(err, services.ErrTxAlreadyAttached):
		return apperrors.New(apperrors.ErrCodeTxAlreadyAttached, "a ledger transaction is already attached to this record")
	case errors.Is(err, services.ErrInvalidPeriod):
		return apperrors.New(apperrors.ErrCodeInvalidPeriod, "invalid period, use: all, today, 7d, 30d")
	case errors.Is(err, services.ErrInvalidAmount):
		return apperrors.New(apperrors.ErrCodeInvalidAmount, "amount must be a positive number")
	case errors.Is(err, services.ErrAmountTooHigh):
		return apperrors.New(apperrors.ErrCodeAmountTooHigh, err.Error())
	}

	sysErr := apperrors.NewSystemError("Internal server error").WithCause(err)
	if !production {
		sysErr.Details = map[string]interface{}{"error": err.Error()}
	}
	return sysErr
}
