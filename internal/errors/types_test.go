package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_MapsCodeToStatusAndType(t *testing.T) {
	cases := []struct {
		code   ErrorCode
		status int
		typ    ErrorType
	}{
		{ErrCodeMissingRequired, http.StatusBadRequest, ErrorTypeValidation},
		{ErrCodeInsufficientBalance, http.StatusPaymentRequired, ErrorTypeBusiness},
		{ErrCodeForbidden, http.StatusForbidden, ErrorTypeBusiness},
		{ErrCodeConversationNotFound, http.StatusNotFound, ErrorTypeBusiness},
		{ErrCodeTxAlreadyAttached, http.StatusConflict, ErrorTypeBusiness},
		{ErrCodeSubmissionRejected, http.StatusUnprocessableEntity, ErrorTypeBusiness},
		{ErrCodeAIUnavailable, http.StatusServiceUnavailable, ErrorTypeExternal},
		{ErrCodeInternal, http.StatusInternalServerError, ErrorTypeSystem},
	}

	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			err := New(tc.code, "message")
			assert.Equal(t, tc.status, err.HTTPCode)
			assert.Equal(t, tc.typ, err.Type)
		})
	}
}

func TestAppError_CauseAndLookup(t *testing.T) {
	cause := errors.New("connection reset")
	appErr := New(ErrCodeLedgerUnavailable, "ledger unavailable").WithCause(cause)

	assert.Equal(t, "ledger unavailable: connection reset", appErr.Error())
	assert.ErrorIs(t, appErr, cause)

	wrapped := fmt.Errorf("complete: %w", appErr)
	assert.True(t, IsAppError(wrapped))
	assert.Same(t, appErr, GetAppError(wrapped))

	fallback := GetAppError(cause)
	assert.Equal(t, ErrCodeInternal, fallback.Code)
	assert.ErrorIs(t, fallback, cause)
}
