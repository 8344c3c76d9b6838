package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aihub/ai-gateway/internal/ai"
	"github.com/aihub/ai-gateway/internal/database"
	"github.com/aihub/ai-gateway/internal/middleware"
	"github.com/aihub/ai-gateway/internal/models"
	"github.com/aihub/ai-gateway/internal/stellar"
)

// MockLedger 账本网关的 mock
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) RealBalance(ctx context.Context, secret string) (*stellar.RealBalance, error) {
	args := m.Called(secret)
	if rb := args.Get(0); rb != nil {
		return rb.(*stellar.RealBalance), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedger) BuildPaymentTransaction(ctx context.Context, source string, amount decimal.Decimal) (string, error) {
	args := m.Called(source, amount.String())
	return args.String(0), args.Error(1)
}

func (m *MockLedger) SignAndSubmit(ctx context.Context, xdr, secret string) (*stellar.SubmitResult, error) {
	args := m.Called(xdr, secret)
	if res := args.Get(0); res != nil {
		return res.(*stellar.SubmitResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type generatorFunc func(ctx context.Context, prompt string) (*ai.Result, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (*ai.Result, error) {
	return f(ctx, prompt)
}

func echoGenerator() generatorFunc {
	return func(ctx context.Context, prompt string) (*ai.Result, error) {
		return &ai.Result{Text: "answer to: " + prompt, Provider: ai.ProviderMock, Model: "mock", ExecutionTimeMs: 12}, nil
	}
}

type testEnv struct {
	store    *database.Store
	pricing  *PricingService
	users    *UserService
	credits  *CreditsService
	usage    *UsageService
	ledger   *MockLedger
	payments *PaymentService
	convs    *ConversationService
}

func newTestEnv(t *testing.T, gen TextGenerator) *testEnv {
	t.Helper()

	store, err := database.OpenInMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	db := store.DB()
	pricing := newTestPricing()
	users := NewUserService(db, "XLM", decimal.RequireFromString("5"))
	credits := NewCreditsService(db, middleware.NewBalanceCache(nil, 0), users, decimal.RequireFromString("10"))
	usage := NewUsageService(db)
	ledger := &MockLedger{}
	payments := NewPaymentService(pricing, credits, users, usage, ledger, gen, nil)

	return &testEnv{
		store:    store,
		pricing:  pricing,
		users:    users,
		credits:  credits,
		usage:    usage,
		ledger:   ledger,
		payments: payments,
		convs:    NewConversationService(db, users, payments),
	}
}

func randomWallet() string {
	return keypair.MustRandom().Address()
}

// newFundedUser 创建带初始余额 5 的用户
func (e *testEnv) newFundedUser(t *testing.T) *models.User {
	t.Helper()
	user, created, err := e.users.FindOrCreate(context.Background(), randomWallet())
	require.NoError(t, err)
	require.True(t, created)
	return user
}

func (e *testEnv) balance(t *testing.T, userID uint) decimal.Decimal {
	t.Helper()
	b, err := e.credits.GetBalance(context.Background(), userID, "XLM")
	require.NoError(t, err)
	return b
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
