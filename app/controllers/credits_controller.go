package controllers

import (
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	apperrors "github.com/aihub/ai-gateway/internal/errors"
	"github.com/aihub/ai-gateway/internal/services"
	"github.com/aihub/ai-gateway/internal/stellar"
)

// CreditsController 余额与计费
type CreditsController struct {
	BaseController
	Credits        *services.CreditsService
	Users          *services.UserService
	Usage          *services.UsageService
	PricingService *services.PricingService
	Ledger         *stellar.Client
}

type realBalanceRequest struct {
	SecretKey string `json:"secretKey"`
}

type amountRequest struct {
	WalletAddress string           `json:"walletAddress" validate:"required,stellar_address"`
	Amount        *decimal.Decimal `json:"amount" validate:"required"`
}

type estimateRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

// RealBalance POST /api/credits/real-balance
func (c *CreditsController) RealBalance() {
	var req realBalanceRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil || req.SecretKey == "" {
		c.Fail(apperrors.ErrCodeMissingSecretKey, "secretKey is required")
		return
	}

	balance, err := c.Ledger.RealBalance(c.Ctx.Request.Context(), req.SecretKey)
	if err != nil {
		c.JSONError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"address":   balance.Address,
		"balance":   balance.NativeBalance,
		"balances":  balance.Balances,
		"sequence":  balance.Sequence,
		"formatted": c.PricingService.FormatAmount(balance.NativeBalance),
		"source":    "stellar-network",
		"network":   c.Ledger.Network(),
		"timestamp": time.Now().UTC(),
	})
}

// Balance GET /api/credits/balance
func (c *CreditsController) Balance() {
	wallet, ok := c.walletQuery()
	if !ok {
		return
	}
	ctx := c.Ctx.Request.Context()
	asset := c.PricingService.Asset()

	balance := decimal.Zero
	stats := &services.UsageStats{TotalCost: decimal.Zero}

	user, err := c.Users.FindByWallet(ctx, wallet)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
	case err != nil:
		c.JSONError(err)
		return
	default:
		if balance, err = c.Credits.GetBalance(ctx, user.ID, asset); err != nil {
			c.JSONError(err)
			return
		}
		since := time.Now().UTC().AddDate(0, 0, -30)
		if stats, err = c.Usage.Stats(ctx, user.ID, &since); err != nil {
			c.JSONError(err)
			return
		}
	}

	c.JSONSuccess(map[string]interface{}{
		"walletAddress": wallet,
		"balance":       balance,
		"asset":         asset,
		"formatted":     c.PricingService.FormatAmount(balance),
		"stats":         stats,
		"statsPeriod":   "30d",
	})
}

// TopUp POST /api/credits/topup
func (c *CreditsController) TopUp() {
	var req amountRequest
	if !c.bindJSON(&req) {
		return
	}

	result, err := c.Credits.TopUp(c.Ctx.Request.Context(), req.WalletAddress, c.PricingService.Asset(), *req.Amount)
	if err != nil {
		c.JSONError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"walletAddress": result.WalletAddress,
		"balance":       result.Balance,
		"added":         result.Added,
		"asset":         result.Asset,
		"formatted": map[string]string{
			"balance": c.PricingService.FormatAmount(result.Balance),
			"added":   c.PricingService.FormatAmount(result.Added),
		},
		"maxTopUp": c.Credits.MaxTopUp(),
		"note":     "off-chain simulated credit for demonstration",
	})
}

// CheckBalance POST /api/credits/check-balance
func (c *CreditsController) CheckBalance() {
	var req amountRequest
	if !c.bindJSON(&req) {
		return
	}
	if req.Amount.IsNegative() {
		c.Fail(apperrors.ErrCodeInvalidAmount, "amount must be a valid number")
		return
	}
	ctx := c.Ctx.Request.Context()
	asset := c.PricingService.Asset()

	var result *services.Sufficiency
	user, err := c.Users.FindByWallet(ctx, req.WalletAddress)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		a := c.PricingService.CheckAffordable(decimal.Zero, *req.Amount)
		result = &services.Sufficiency{Sufficient: a.Sufficient, Current: a.Current, Required: a.Required, Deficit: a.Deficit}
	case err != nil:
		c.JSONError(err)
		return
	default:
		if result, err = c.Credits.CheckSufficient(ctx, user.ID, asset, *req.Amount); err != nil {
			c.JSONError(err)
			return
		}
	}

	formatted := map[string]interface{}{
		"current":  c.PricingService.FormatAmount(result.Current),
		"required": c.PricingService.FormatAmount(result.Required),
		"deficit":  nil,
	}
	if result.Deficit != nil {
		formatted["deficit"] = c.PricingService.FormatAmount(*result.Deficit)
	}

	c.JSONSuccess(map[string]interface{}{
		"sufficient": result.Sufficient,
		"current":    result.Current,
		"required":   result.Required,
		"deficit":    result.Deficit,
		"asset":      asset,
		"formatted":  formatted,
	})
}

// Pricing GET /api/credits/pricing
func (c *CreditsController) Pricing() {
	info := c.PricingService.PricingInfo()
	c.JSONSuccess(struct {
		services.PricingInfo
		Formatted map[string]string `json:"formatted"`
	}{
		PricingInfo: info,
		Formatted: map[string]string{
			"short": c.PricingService.FormatAmount(info.Short.Price),
			"long":  c.PricingService.FormatAmount(info.Long.Price),
		},
	})
}

// EstimateCost POST /api/credits/estimate-cost
func (c *CreditsController) EstimateCost() {
	var req estimateRequest
	if !c.bindJSON(&req) {
		return
	}
	length := utf8.RuneCountInString(req.Prompt)
	if length > c.PricingService.MaxPromptLength() {
		c.Fail(apperrors.ErrCodePromptTooLong, "prompt too long")
		return
	}

	quote := c.PricingService.EstimateCost(req.Prompt)
	c.JSONSuccess(map[string]interface{}{
		"tokens":       quote.Tokens,
		"cost":         quote.Cost,
		"tier":         quote.Tier,
		"asset":        c.PricingService.Asset(),
		"promptLength": length,
		"formatted":    map[string]string{"cost": c.PricingService.FormatAmount(quote.Cost)},
	})
}
