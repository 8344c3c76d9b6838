package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/ai-gateway/internal/middleware"
	"github.com/aihub/ai-gateway/internal/models"
)

func TestUserService_FindOrCreateSeedsBalance(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	ctx := context.Background()
	wallet := randomWallet()

	user, created, err := env.users.FindOrCreate(ctx, wallet)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, wallet, user.WalletAddress)
	assert.True(t, env.balance(t, user.ID).Equal(dec("5")))

	again, created, err := env.users.FindOrCreate(ctx, wallet)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)
	assert.True(t, env.balance(t, user.ID).Equal(dec("5")))

	_, err = env.users.FindByWallet(ctx, randomWallet())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreditsService_GetBalanceDefaultsToZero(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	user := env.newFundedUser(t)

	balance, err := env.credits.GetBalance(context.Background(), user.ID, "USDC")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestCreditsService_DebitInsufficientLeavesBalance(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	ctx := context.Background()
	user := env.newFundedUser(t)

	_, err := env.credits.Debit(ctx, user.ID, "XLM", dec("5.0000001"))
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Required.Equal(dec("5.0000001")))
	assert.True(t, insufficient.Current.Equal(dec("5")))
	assert.True(t, insufficient.Deficit.Equal(dec("0.0000001")))
	assert.Equal(t, SourceOffchain, insufficient.Source)

	assert.True(t, env.balance(t, user.ID).Equal(dec("5")))
}

func TestCreditsService_DebitMissingRow(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	user := env.newFundedUser(t)

	_, err := env.credits.Debit(context.Background(), user.ID, "USDC", dec("1"))
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Current.IsZero())
}

func TestCreditsService_RejectsNonPositiveAmounts(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	ctx := context.Background()
	user := env.newFundedUser(t)

	for _, amount := range []string{"0", "-1", "0.00000001"} {
		_, err := env.credits.Debit(ctx, user.ID, "XLM", dec(amount))
		assert.ErrorIs(t, err, ErrInvalidAmount, amount)
		_, err = env.credits.Credit(ctx, user.ID, "XLM", dec(amount))
		assert.ErrorIs(t, err, ErrInvalidAmount, amount)
	}
}

func TestCreditsService_CreditDebitRoundTrip(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	ctx := context.Background()
	user := env.newFundedUser(t)
	before := env.balance(t, user.ID)

	amounts := []string{"0.02", "0.05", "0.1", "0.0000001", "3.3333333"}
	for _, a := range amounts {
		after, err := env.credits.Credit(ctx, user.ID, "XLM", dec(a))
		require.NoError(t, err)
		restored, err := env.credits.Debit(ctx, user.ID, "XLM", after.Sub(before))
		require.NoError(t, err)
		assert.True(t, restored.Equal(before), "amount %s restored %s", a, restored)
	}
}

func TestCreditsService_CreditCreatesRow(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	ctx := context.Background()
	user := env.newFundedUser(t)

	after, err := env.credits.Credit(ctx, user.ID, "USDC", dec("1.5"))
	require.NoError(t, err)
	assert.True(t, after.Equal(dec("1.5")))

	after, err = env.credits.Credit(ctx, user.ID, "USDC", dec("0.25"))
	require.NoError(t, err)
	assert.True(t, after.Equal(dec("1.75")))

	var rows int64
	require.NoError(t, env.store.DB().Model(&models.Balance{}).Where("user_id = ?", user.ID).Count(&rows).Error)
	assert.Equal(t, int64(2), rows)
}

func TestCreditsService_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	ctx := context.Background()
	user := env.newFundedUser(t)

	// 余额调整为 1.0
	_, err := env.credits.Debit(ctx, user.ID, "XLM", dec("4"))
	require.NoError(t, err)

	const workers = 50
	cost := dec("0.03")
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.credits.Debit(ctx, user.ID, "XLM", cost)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 33, succeeded)
	for _, err := range failures {
		var insufficient *InsufficientBalanceError
		assert.True(t, errors.As(err, &insufficient), "unexpected error: %v", err)
	}
	assert.True(t, env.balance(t, user.ID).Equal(dec("0.01")))
}

func TestCreditsService_CheckSufficient(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	ctx := context.Background()
	user := env.newFundedUser(t)

	ok, err := env.credits.CheckSufficient(ctx, user.ID, "XLM", dec("0.05"))
	require.NoError(t, err)
	assert.True(t, ok.Sufficient)
	assert.Nil(t, ok.Deficit)

	short, err := env.credits.CheckSufficient(ctx, user.ID, "XLM", dec("6"))
	require.NoError(t, err)
	assert.False(t, short.Sufficient)
	require.NotNil(t, short.Deficit)
	assert.True(t, short.Deficit.Equal(dec("1")))
}

func TestCreditsService_TopUp(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	ctx := context.Background()
	user := env.newFundedUser(t)

	_, err := env.credits.TopUp(ctx, user.WalletAddress, "XLM", dec("0"))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = env.credits.TopUp(ctx, user.WalletAddress, "XLM", dec("10.5"))
	assert.ErrorIs(t, err, ErrAmountTooHigh)

	_, err = env.credits.TopUp(ctx, randomWallet(), "XLM", dec("1"))
	assert.ErrorIs(t, err, ErrUserNotFound)

	result, err := env.credits.TopUp(ctx, user.WalletAddress, "XLM", dec("10"))
	require.NoError(t, err)
	assert.True(t, result.Balance.Equal(dec("15")))
	assert.True(t, result.Added.Equal(dec("10")))
	assert.Equal(t, "XLM", result.Asset)
}

// newCachedCredits 使用 miniredis 缓存的余额服务，与 env 共用存储
func newCachedCredits(t *testing.T, env *testEnv) (*CreditsService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := middleware.NewBalanceCache(client, 5*time.Minute)
	return NewCreditsService(env.store.DB(), cache, env.users, decimal.RequireFromString("10")), mr
}

func TestCreditsService_MutationsInvalidateCache(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	credits, mr := newCachedCredits(t, env)
	user := env.newFundedUser(t)
	ctx := context.Background()
	key := fmt.Sprintf("balance:%d:XLM", user.ID)

	balance, err := credits.GetBalance(ctx, user.ID, "XLM")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("5")))
	cached, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "50000000", cached)

	_, err = credits.Debit(ctx, user.ID, "XLM", dec("0.02"))
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))

	balance, err = credits.GetBalance(ctx, user.ID, "XLM")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("4.98")))

	_, err = credits.Credit(ctx, user.ID, "XLM", dec("1"))
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))

	balance, err = credits.GetBalance(ctx, user.ID, "XLM")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("5.98")))
}

func TestCreditsService_CachedBalanceMatchesStoreAfterConcurrentDebits(t *testing.T) {
	env := newTestEnv(t, echoGenerator())
	credits, _ := newCachedCredits(t, env)
	user := env.newFundedUser(t)
	ctx := context.Background()

	_, err := credits.GetBalance(ctx, user.ID, "XLM")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = credits.Debit(ctx, user.ID, "XLM", dec("0.1"))
			_, _ = credits.GetBalance(ctx, user.ID, "XLM")
		}()
	}
	wg.Wait()

	// 最后一次扣减删除缓存，随后的读取从存储回填
	_, err = credits.Debit(ctx, user.ID, "XLM", dec("0.1"))
	require.NoError(t, err)

	cached, err := credits.GetBalance(ctx, user.ID, "XLM")
	require.NoError(t, err)
	stored, err := env.credits.GetBalance(ctx, user.ID, "XLM")
	require.NoError(t, err)
	assert.True(t, cached.Equal(stored), "cached %s stored %s", cached, stored)
	assert.True(t, stored.Equal(dec("2.9")))
}
