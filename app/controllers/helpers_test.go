package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/beego/beego/v2/server/web"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/support/render/problem"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/require"

	"github.com/aihub/ai-gateway/app/controllers"
	"github.com/aihub/ai-gateway/app/middleware"
	"github.com/aihub/ai-gateway/app/router"
	"github.com/aihub/ai-gateway/internal/ai"
	"github.com/aihub/ai-gateway/internal/auth"
	"github.com/aihub/ai-gateway/internal/config"
	"github.com/aihub/ai-gateway/internal/database"
	internalmw "github.com/aihub/ai-gateway/internal/middleware"
	"github.com/aihub/ai-gateway/internal/models"
	"github.com/aihub/ai-gateway/internal/services"
	"github.com/aihub/ai-gateway/internal/stellar"
)

func init() {
	web.BConfig.CopyRequestBody = true
}

// stubHorizon 所有账户均未激活的 Horizon
type stubHorizon struct{}

func (stubHorizon) AccountDetail(request horizonclient.AccountRequest) (horizon.Account, error) {
	return horizon.Account{}, &horizonclient.Error{Problem: problem.P{Status: http.StatusNotFound, Title: "Resource Missing"}}
}

func (stubHorizon) SubmitTransaction(tx *txnbuild.Transaction) (horizon.Transaction, error) {
	return horizon.Transaction{}, errors.New("submission disabled in tests")
}

func (stubHorizon) Ledgers(request horizonclient.LedgerRequest) (horizon.LedgersPage, error) {
	return horizon.LedgersPage{}, nil
}

// failingProvider 总是失败的提供商
type failingProvider struct{}

func (failingProvider) Name() string  { return "failing" }
func (failingProvider) Model() string { return "none" }
func (failingProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return "", errors.New("provider down")
}
func (failingProvider) Ping(ctx context.Context) error { return errors.New("provider down") }

type envOptions struct {
	production bool
	provider   ai.Provider
}

type testEnv struct {
	handler http.Handler
	users   *services.UserService
	credits *services.CreditsService
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	store, err := database.OpenInMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{Server: config.ServerConfig{Env: "development"}}
	if opts.production {
		cfg.Server.Env = "production"
	}

	ledger, err := stellar.NewClientWithAPI(stubHorizon{}, config.StellarConfig{
		Network:               stellar.NetworkTestnet,
		HorizonURL:            "https://horizon-testnet.stellar.org",
		RequestTimeout:        time.Second,
		MinTransactionBalance: 0.0001,
	})
	require.NoError(t, err)

	provider := opts.provider
	if provider == nil {
		provider = ai.NewMockProvider(0, 0)
	}
	generator := ai.NewServiceWithStrategies(time.Second, ai.Strategy{Provider: provider})

	jwtService, err := auth.NewJWTService("controller-test-secret-0123456789", "ai-gateway", time.Hour)
	require.NoError(t, err)

	db := store.DB()
	pricing := services.NewPricingService(services.TariffFromConfig(config.PricingConfig{
		PriceShort:       0.02,
		PriceLong:        0.05,
		ShortLimitTokens: 300,
		MaxPromptLength:  10000,
	}), "XLM", stellar.NetworkTestnet)
	users := services.NewUserService(db, "XLM", decimal.RequireFromString("5"))
	credits := services.NewCreditsService(db, internalmw.NewBalanceCache(nil, 0), users, decimal.RequireFromString("10"))
	usage := services.NewUsageService(db)
	payments := services.NewPaymentService(pricing, credits, users, usage, ledger, generator, nil)

	set := controllers.NewSet(controllers.Deps{
		Config:        cfg,
		Pricing:       pricing,
		Users:         users,
		Credits:       credits,
		Usage:         usage,
		Payments:      payments,
		Conversations: services.NewConversationService(db, users, payments),
		AI:            generator,
		Ledger:        ledger,
		JWT:           jwtService,
		Health:        database.NewHealthChecker(store.SQLDB(), nil, logrus.New()),
	})

	reg := web.NewControllerRegister()
	require.NoError(t, router.Register(reg, set, middleware.NewManager([]string{"http://localhost:5173"})))

	return &testEnv{handler: reg, users: users, credits: credits}
}

// newFundedWallet 注册钱包，初始余额 5
func (e *testEnv) newFundedWallet(t *testing.T) *models.User {
	t.Helper()
	user, _, err := e.users.FindOrCreate(context.Background(), keypair.MustRandom().Address())
	require.NoError(t, err)
	return user
}

func (e *testEnv) balance(t *testing.T, userID uint) decimal.Decimal {
	t.Helper()
	b, err := e.credits.GetBalance(context.Background(), userID, "XLM")
	require.NoError(t, err)
	return b
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
	Required *decimal.Decimal `json:"required"`
	Current  *decimal.Decimal `json:"current"`
	Deficit  *decimal.Decimal `json:"deficit"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func requireErrorCode(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) envelope {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	env := decodeEnvelope(t, rec)
	require.False(t, env.Success)
	require.NotNil(t, env.Error, rec.Body.String())
	require.Equal(t, code, env.Error.Code)
	return env
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func prompt(n int) string {
	return strings.Repeat("a", n)
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func newRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}
