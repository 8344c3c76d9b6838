package services

import (
	"sync/atomic"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/aihub/ai-gateway/internal/config"
)

// Tier 计费档位
type Tier string

const (
	TierShort Tier = "short"
	TierLong  Tier = "long"
)

// CharsPerToken 每个 token 的估算字符数
const CharsPerToken = 4

// Tariff 计费价目
type Tariff struct {
	PriceShort       decimal.Decimal
	PriceLong        decimal.Decimal
	ShortLimitTokens int
	MaxPromptLength  int
}

// TariffFromConfig 从配置构造价目
func TariffFromConfig(cfg config.PricingConfig) Tariff {
	return Tariff{
		PriceShort:       decimal.NewFromFloat(cfg.PriceShort),
		PriceLong:        decimal.NewFromFloat(cfg.PriceLong),
		ShortLimitTokens: cfg.ShortLimitTokens,
		MaxPromptLength:  cfg.MaxPromptLength,
	}
}

// Quote 费用估算
type Quote struct {
	Tokens int             `json:"tokens"`
	Cost   decimal.Decimal `json:"cost"`
	Tier   Tier            `json:"tier"`
}

// TierInfo 档位说明
type TierInfo struct {
	Price     decimal.Decimal `json:"price"`
	MinTokens int             `json:"minTokens,omitempty"`
	MaxTokens int             `json:"maxTokens,omitempty"`
}

// PricingInfo 价目展示信息
type PricingInfo struct {
	Short            TierInfo `json:"short"`
	Long             TierInfo `json:"long"`
	Asset            string   `json:"asset"`
	Network          string   `json:"network"`
	CharsPerToken    int      `json:"charsPerToken"`
	MaxPromptLength  int      `json:"maxPromptLength"`
	EstimationMethod string   `json:"estimationMethod"`
}

// Affordability 余额是否足够支付
type Affordability struct {
	Sufficient bool             `json:"sufficient"`
	Required   decimal.Decimal  `json:"required"`
	Current    decimal.Decimal  `json:"current"`
	Deficit    *decimal.Decimal `json:"deficit,omitempty"`
}

// PricingService 计费引擎，除价目外无状态
type PricingService struct {
	tariff  atomic.Pointer[Tariff]
	asset   string
	network string
}

// NewPricingService 创建计费引擎
func NewPricingService(tariff Tariff, asset, network string) *PricingService {
	s := &PricingService{asset: asset, network: network}
	s.tariff.Store(&tariff)
	return s
}

// Tariff 当前价目
func (s *PricingService) Tariff() Tariff {
	return *s.tariff.Load()
}

// UpdateTariff 原子替换价目
func (s *PricingService) UpdateTariff(t Tariff) {
	s.tariff.Store(&t)
}

// Asset 计费资产
func (s *PricingService) Asset() string {
	return s.asset
}

// MaxPromptLength 提示词最大字符数
func (s *PricingService) MaxPromptLength() int {
	return s.tariff.Load().MaxPromptLength
}

// EstimateTokens 按每 4 个字符一个 token 估算，向上取整
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// EstimateCost 估算费用
func (s *PricingService) EstimateCost(text string) Quote {
	t := s.tariff.Load()
	tokens := EstimateTokens(text)
	if tokens <= t.ShortLimitTokens {
		return Quote{Tokens: tokens, Cost: t.PriceShort, Tier: TierShort}
	}
	return Quote{Tokens: tokens, Cost: t.PriceLong, Tier: TierLong}
}

// PricingInfo 返回价目展示信息
func (s *PricingService) PricingInfo() PricingInfo {
	t := s.tariff.Load()
	return PricingInfo{
		Short:            TierInfo{Price: t.PriceShort, MaxTokens: t.ShortLimitTokens},
		Long:             TierInfo{Price: t.PriceLong, MinTokens: t.ShortLimitTokens + 1},
		Asset:            s.asset,
		Network:          s.network,
		CharsPerToken:    CharsPerToken,
		MaxPromptLength:  t.MaxPromptLength,
		EstimationMethod: "text length, ~4 characters per token",
	}
}

// CheckAffordable 比较余额与费用
func (s *PricingService) CheckAffordable(balance, cost decimal.Decimal) Affordability {
	result := Affordability{
		Sufficient: balance.GreaterThanOrEqual(cost),
		Required:   cost,
		Current:    balance,
	}
	if !result.Sufficient {
		deficit := cost.Sub(balance)
		result.Deficit = &deficit
	}
	return result
}

// FormatAmount 格式化金额，保留 4 位小数
func (s *PricingService) FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(4) + " " + s.asset
}
