package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aihub/ai-gateway/internal/ai"
	apperrors "github.com/aihub/ai-gateway/internal/errors"
	"github.com/aihub/ai-gateway/internal/models"
	"github.com/aihub/ai-gateway/internal/stellar"
)

var placeholderPattern = regexp.MustCompile(`^demo_\d+_[0-9a-f]{9}$`)

func failingGenerator() generatorFunc {
	return func(ctx context.Context, prompt string) (*ai.Result, error) {
		return nil, ai.ErrAllProvidersFailed
	}
}

func TestComplete_ShortPromptDebitsOffchain(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	user := env.newFundedUser(t)
	prompt := strings.Repeat("a", 50)

	result, err := env.payments.Complete(context.Background(), CompletionRequest{
		WalletAddress: user.WalletAddress,
		Prompt:        prompt,
	})
	require.NoError(t, err)

	assert.Equal(t, 13, result.Tokens)
	assert.Equal(t, TierShort, result.Tier)
	assert.True(t, result.Cost.Equal(dec("0.02")))
	assert.True(t, result.BalanceAfter.Equal(dec("4.98")), "balanceAfter %s", result.BalanceAfter)
	assert.Equal(t, "answer to: "+prompt, result.Response)
	assert.Equal(t, HashPrompt(prompt), result.PromptHash)
	assert.Regexp(t, placeholderPattern, result.TxHash)
	assert.Equal(t, models.PaymentModeSimulated, result.PaymentMode)
	assert.True(t, env.balance(t, user.ID).Equal(dec("4.98")))

	records, total, err := env.usage.QueryRecent(context.Background(), user.ID, UsageQuery{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.NotNil(t, result.UsageRecordID)
	assert.Equal(t, *result.UsageRecordID, records[0].ID)
	assert.Equal(t, result.PromptHash, records[0].PromptHash)
	assert.Equal(t, int64(200000), records[0].CostAmount)
	assert.Equal(t, result.TxHash, *records[0].TxHash)
	env.ledger.AssertNotCalled(t, "RealBalance", mock.Anything)
}

func TestComplete_LongPromptInsufficientBalance(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	ctx := context.Background()
	user := env.newFundedUser(t)
	_, err := env.credits.Debit(ctx, user.ID, "XLM", dec("4.97"))
	require.NoError(t, err)

	_, err = env.payments.Complete(ctx, CompletionRequest{
		WalletAddress: user.WalletAddress,
		Prompt:        strings.Repeat("b", 2000),
	})

	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Required.Equal(dec("0.05")))
	assert.True(t, insufficient.Current.Equal(dec("0.03")))
	assert.True(t, insufficient.Deficit.Equal(dec("0.02")))
	assert.True(t, env.balance(t, user.ID).Equal(dec("0.03")))

	_, total, err := env.usage.QueryRecent(ctx, user.ID, UsageQuery{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestComplete_AIFailureRefunds(t *testing.T) {
	env := newTestEnv(t, failingGenerator())
	user := env.newFundedUser(t)

	_, err := env.payments.Complete(context.Background(), CompletionRequest{
		WalletAddress: user.WalletAddress,
		Prompt:        "what is a ledger?",
	})

	var unavailable *AIUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.True(t, unavailable.Refunded)
	assert.ErrorIs(t, err, ai.ErrAllProvidersFailed)
	assert.True(t, env.balance(t, user.ID).Equal(dec("5")))
}

func TestComplete_UnknownWalletIsInsufficient(t *testing.T) {
	env := newTestEnv(t, echoGenerator())

	_, err := env.payments.Complete(context.Background(), CompletionRequest{
		WalletAddress: randomWallet(),
		Prompt:        "hello",
	})

	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Current.IsZero())
	assert.True(t, insufficient.Deficit.Equal(dec("0.02")))
}

func TestComplete_InvalidInput(t *testing.T) {
	generated := false
	env := newTestEnv(t, generatorFunc(func(ctx context.Context, prompt string) (*ai.Result, error) {
		generated = true
		return &ai.Result{Text: "x"}, nil
	}))
	user := env.newFundedUser(t)

	cases := []struct {
		name string
		req  CompletionRequest
		code apperrors.ErrorCode
	}{
		{"missing wallet", CompletionRequest{Prompt: "hi"}, apperrors.ErrCodeMissingRequired},
		{"missing prompt", CompletionRequest{WalletAddress: user.WalletAddress}, apperrors.ErrCodeMissingRequired},
		{"bad address", CompletionRequest{WalletAddress: "GABC", Prompt: "hi"}, apperrors.ErrCodeInvalidAddress},
		{"blank prompt", CompletionRequest{WalletAddress: user.WalletAddress, Prompt: "   \n"}, apperrors.ErrCodeInvalidPrompt},
		{"too long", CompletionRequest{WalletAddress: user.WalletAddress, Prompt: strings.Repeat("z", 10001)}, apperrors.ErrCodePromptTooLong},
		{"bad secret", CompletionRequest{WalletAddress: user.WalletAddress, Prompt: "hi", SecretKey: "SNOTAKEY"}, apperrors.ErrCodeInvalidSecretKey},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.payments.Complete(context.Background(), tc.req)
			var invalid *InvalidInputError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, string(tc.code), invalid.Code)
			assert.NotContains(t, invalid.Message, "SNOTAKEY")
		})
	}

	assert.False(t, generated)
	assert.True(t, env.balance(t, user.ID).Equal(dec("5")))
	env.ledger.AssertNotCalled(t, "RealBalance", mock.Anything)
}

func TestComplete_BlankSecretKeyUsesOffchainBalance(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	user := env.newFundedUser(t)

	result, err := env.payments.Complete(context.Background(), CompletionRequest{
		WalletAddress: user.WalletAddress,
		Prompt:        strings.Repeat("a", 50),
		SecretKey:     "   \t",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentModeSimulated, result.PaymentMode)
	assert.True(t, env.balance(t, user.ID).Equal(dec("4.98")))
	env.ledger.AssertNotCalled(t, "RealBalance", mock.Anything)
}

func TestComplete_LedgerPathSettles(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	user := env.newFundedUser(t)
	signer := keypair.MustRandom()
	hash := strings.Repeat("f", 64)

	env.ledger.On("RealBalance", signer.Seed()).Return(&stellar.RealBalance{Address: signer.Address(), NativeBalance: dec("10")}, nil)
	env.ledger.On("BuildPaymentTransaction", user.WalletAddress, "0.02").Return("AAAAxdr", nil)
	env.ledger.On("SignAndSubmit", "AAAAxdr", signer.Seed()).Return(&stellar.SubmitResult{TxHash: hash, Ledger: 100, Success: true}, nil)

	result, err := env.payments.Complete(context.Background(), CompletionRequest{
		WalletAddress: user.WalletAddress,
		Prompt:        "hello ledger",
		SecretKey:     signer.Seed(),
	})
	require.NoError(t, err)

	assert.Equal(t, hash, result.TxHash)
	assert.Empty(t, result.SettlementError)
	assert.Equal(t, models.PaymentModeLedger, result.PaymentMode)
	assert.True(t, result.BalanceAfter.Equal(dec("9.98")))
	// 离线余额不受影响
	assert.True(t, env.balance(t, user.ID).Equal(dec("5")))

	records, _, err := env.usage.QueryRecent(context.Background(), user.ID, UsageQuery{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, hash, *records[0].TxHash)
	assert.Equal(t, models.PaymentModeLedger, records[0].PaymentMode)
	env.ledger.AssertExpectations(t)
}

func TestComplete_LedgerSettlementFailureFallsBack(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	wallet := randomWallet()
	signer := keypair.MustRandom()

	env.ledger.On("RealBalance", signer.Seed()).Return(&stellar.RealBalance{Address: signer.Address(), NativeBalance: dec("1")}, nil)
	env.ledger.On("BuildPaymentTransaction", wallet, "0.02").Return("AAAAxdr", nil)
	env.ledger.On("SignAndSubmit", "AAAAxdr", signer.Seed()).
		Return(nil, &stellar.KeyMismatchError{Expected: wallet, Actual: signer.Address()})

	result, err := env.payments.Complete(context.Background(), CompletionRequest{
		WalletAddress: wallet,
		Prompt:        "hello",
		SecretKey:     signer.Seed(),
	})
	require.NoError(t, err)

	assert.Regexp(t, placeholderPattern, result.TxHash)
	assert.NotEmpty(t, result.SettlementError)
	assert.NotContains(t, result.SettlementError, signer.Seed())
	assert.Nil(t, result.UsageRecordID)
	assert.Equal(t, "key_mismatch", settlementReason(&stellar.KeyMismatchError{}))
}

func TestComplete_LedgerBalanceChecks(t *testing.T) {
	signer := keypair.MustRandom()

	cases := []struct {
		name  string
		setup func(m *MockLedger)
		check func(t *testing.T, err error)
	}{
		{
			name: "below cost",
			setup: func(m *MockLedger) {
				m.On("RealBalance", signer.Seed()).Return(&stellar.RealBalance{Address: signer.Address(), NativeBalance: dec("0.01")}, nil)
			},
			check: func(t *testing.T, err error) {
				var insufficient *InsufficientBalanceError
				require.ErrorAs(t, err, &insufficient)
				assert.Equal(t, SourceLedger, insufficient.Source)
				assert.True(t, insufficient.Deficit.Equal(dec("0.01")))
			},
		},
		{
			name: "account not found",
			setup: func(m *MockLedger) {
				m.On("RealBalance", signer.Seed()).Return(nil, &stellar.AccountNotFoundError{Address: signer.Address()})
			},
			check: func(t *testing.T, err error) {
				var insufficient *InsufficientBalanceError
				require.ErrorAs(t, err, &insufficient)
				assert.True(t, insufficient.Current.IsZero())
			},
		},
		{
			name: "network error",
			setup: func(m *MockLedger) {
				m.On("RealBalance", signer.Seed()).Return(nil, &stellar.NetworkError{Op: "load account", Err: errors.New("timeout")})
			},
			check: func(t *testing.T, err error) {
				var unavailable *LedgerUnavailableError
				require.ErrorAs(t, err, &unavailable)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			generated := false
			env := newTestEnv(t, generatorFunc(func(ctx context.Context, prompt string) (*ai.Result, error) {
				generated = true
				return &ai.Result{Text: "x"}, nil
			}))
			tc.setup(env.ledger)

			_, err := env.payments.Complete(context.Background(), CompletionRequest{
				WalletAddress: randomWallet(),
				Prompt:        "hello",
				SecretKey:     signer.Seed(),
			})
			tc.check(t, err)
			assert.False(t, generated)
			env.ledger.AssertNotCalled(t, "BuildPaymentTransaction", mock.Anything, mock.Anything)
		})
	}
}

func TestComplete_LedgerPathAIFailureDoesNotSettle(t *testing.T) {
	env := newTestEnv(t, failingGenerator())
	signer := keypair.MustRandom()
	env.ledger.On("RealBalance", signer.Seed()).Return(&stellar.RealBalance{Address: signer.Address(), NativeBalance: dec("10")}, nil)

	_, err := env.payments.Complete(context.Background(), CompletionRequest{
		WalletAddress: randomWallet(),
		Prompt:        "hello",
		SecretKey:     signer.Seed(),
	})

	var unavailable *AIUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.False(t, unavailable.Refunded)
	env.ledger.AssertNotCalled(t, "BuildPaymentTransaction", mock.Anything, mock.Anything)
}

func TestComplete_SurvivesCallerCancellation(t *testing.T) {
	env := newTestEnv(t, generatorFunc(func(ctx context.Context, prompt string) (*ai.Result, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &ai.Result{Text: "done", Provider: "mock"}, nil
	}))
	user := env.newFundedUser(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := env.payments.Complete(ctx, CompletionRequest{WalletAddress: user.WalletAddress, Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "done", result.Response)
	assert.True(t, env.balance(t, user.ID).Equal(dec("4.98")))
}

func TestComplete_TrimsPromptForGeneration(t *testing.T) {
	var seen string
	env := newTestEnv(t, generatorFunc(func(ctx context.Context, prompt string) (*ai.Result, error) {
		seen = prompt
		return &ai.Result{Text: "ok"}, nil
	}))
	user := env.newFundedUser(t)

	result, err := env.payments.Complete(context.Background(), CompletionRequest{WalletAddress: user.WalletAddress, Prompt: "  padded  "})
	require.NoError(t, err)
	assert.Equal(t, "padded", seen)
	assert.Equal(t, HashPrompt("  padded  "), result.PromptHash)
}

func TestHashPromptAndPlaceholder(t *testing.T) {
	h := HashPrompt("same input")
	assert.Len(t, h, 16)
	assert.Equal(t, h, HashPrompt("same input"))
	assert.NotEqual(t, h, HashPrompt("same input "))

	ref := NewPlaceholderTx()
	assert.Regexp(t, placeholderPattern, ref)
	assert.True(t, IsPlaceholderTx(ref))
	assert.NotEqual(t, ref, NewPlaceholderTx())
}
