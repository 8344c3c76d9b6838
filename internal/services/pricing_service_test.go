package services

import (
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/ai-gateway/internal/config"
)

func newTestPricing() *PricingService {
	return NewPricingService(TariffFromConfig(config.PricingConfig{
		PriceShort:       0.02,
		PriceLong:        0.05,
		ShortLimitTokens: 300,
		MaxPromptLength:  10000,
	}), "XLM", "testnet")
}

func TestEstimateCost(t *testing.T) {
	pricing := newTestPricing()

	cases := []struct {
		name   string
		text   string
		tokens int
		tier   Tier
		cost   string
	}{
		{"empty", "", 0, TierShort, "0.02"},
		{"one char", "a", 1, TierShort, "0.02"},
		{"four chars", "abcd", 1, TierShort, "0.02"},
		{"five chars", "abcde", 2, TierShort, "0.02"},
		{"fifty chars", strings.Repeat("x", 50), 13, TierShort, "0.02"},
		{"threshold", strings.Repeat("x", 1200), 300, TierShort, "0.02"},
		{"above threshold", strings.Repeat("x", 1201), 301, TierLong, "0.05"},
		{"two thousand", strings.Repeat("x", 2000), 500, TierLong, "0.05"},
		{"multibyte", "日本語テキスト", 2, TierShort, "0.02"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q := pricing.EstimateCost(tc.text)
			assert.Equal(t, tc.tokens, q.Tokens)
			assert.Equal(t, tc.tier, q.Tier)
			assert.True(t, q.Cost.Equal(decimal.RequireFromString(tc.cost)), "cost %s", q.Cost)
		})
	}
}

func TestEstimateTokensIsCeilOfQuarter(t *testing.T) {
	for n := 0; n < 64; n++ {
		want := n / 4
		if n%4 != 0 {
			want++
		}
		assert.Equal(t, want, EstimateTokens(strings.Repeat("y", n)), "length %d", n)
	}
}

func TestUpdateTariff(t *testing.T) {
	pricing := newTestPricing()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pricing.EstimateCost("hello")
		}()
	}

	next := pricing.Tariff()
	next.PriceShort = decimal.RequireFromString("0.01")
	next.ShortLimitTokens = 1
	pricing.UpdateTariff(next)
	wg.Wait()

	q := pricing.EstimateCost("hello")
	assert.Equal(t, TierLong, q.Tier)
	assert.True(t, q.Cost.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, pricing.EstimateCost("hi").Cost.Equal(decimal.RequireFromString("0.01")))
}

func TestCheckAffordable(t *testing.T) {
	pricing := newTestPricing()

	ok := pricing.CheckAffordable(decimal.RequireFromString("5"), decimal.RequireFromString("0.02"))
	assert.True(t, ok.Sufficient)
	assert.Nil(t, ok.Deficit)

	short := pricing.CheckAffordable(decimal.RequireFromString("0.03"), decimal.RequireFromString("0.05"))
	assert.False(t, short.Sufficient)
	require.NotNil(t, short.Deficit)
	assert.Equal(t, "0.02", short.Deficit.String())
}

func TestPricingInfoAndFormat(t *testing.T) {
	pricing := newTestPricing()
	info := pricing.PricingInfo()

	assert.Equal(t, 300, info.Short.MaxTokens)
	assert.Equal(t, 301, info.Long.MinTokens)
	assert.Equal(t, "XLM", info.Asset)
	assert.Equal(t, 4, info.CharsPerToken)
	assert.Equal(t, 10000, pricing.MaxPromptLength())

	assert.Equal(t, "0.0200 XLM", pricing.FormatAmount(decimal.RequireFromString("0.02")))
	assert.Equal(t, "4.9800 XLM", pricing.FormatAmount(decimal.RequireFromString("4.98")))
}
