package di

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/ai-gateway/internal/config"
	"github.com/aihub/ai-gateway/internal/database"
	"github.com/aihub/ai-gateway/internal/kafka"
	"github.com/aihub/ai-gateway/internal/middleware"
	"github.com/aihub/ai-gateway/internal/services"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("GATEWAY_DATABASE_URL", "file:di_test?mode=memory&cache=shared&_pragma=foreign_keys(1)")
	t.Setenv("GATEWAY_AI_PROVIDER", "mock")

	cfg, err := config.NewLoader().Load()
	require.NoError(t, err)
	return cfg
}

func TestNewContainer_RejectsDuplicateRegistration(t *testing.T) {
	cfg := testConfig(t)
	container, err := NewContainer(cfg)
	require.NoError(t, err)

	assert.Error(t, registerProviders(container, cfg))
}

func TestNewContainer_ResolvesServiceGraph(t *testing.T) {
	container, err := NewContainer(testConfig(t))
	require.NoError(t, err)

	err = container.Invoke(func(
		store *database.Store,
		rdb *redis.Client,
		cache *middleware.BalanceCache,
		producer *kafka.Producer,
		payments *services.PaymentService,
		conversations *services.ConversationService,
		checker *database.HealthChecker,
	) {
		defer store.Close()

		assert.Equal(t, database.DriverSQLite, store.Driver())
		assert.Nil(t, rdb)
		assert.False(t, cache.Enabled())
		assert.Nil(t, producer)
		assert.NotNil(t, payments)
		assert.NotNil(t, conversations)
		assert.True(t, checker.Check(context.Background()).Healthy)
	})
	require.NoError(t, err)
}

func TestNewContainer_PricingFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pricing.PriceShort = 0.01

	container, err := NewContainer(cfg)
	require.NoError(t, err)

	err = container.Invoke(func(pricing *services.PricingService) {
		quote := pricing.EstimateCost("hello")
		assert.Equal(t, services.TierShort, quote.Tier)
		assert.Equal(t, "0.01", quote.Cost.String())
		assert.Equal(t, "XLM", pricing.Asset())
	})
	require.NoError(t, err)
}
