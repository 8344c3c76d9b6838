package controllers

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aihub/ai-gateway/internal/services"
)

// UsageController 使用记录查询与交易回填
type UsageController struct {
	BaseController
	Usage   *services.UsageService
	Users   *services.UserService
	Pricing *services.PricingService
}

type attachTxRequest struct {
	WalletAddress string `json:"walletAddress" validate:"required,stellar_address"`
	TxHash        string `json:"txHash" validate:"required"`
}

// List GET /api/usage
func (c *UsageController) List() {
	wallet, ok := c.walletQuery()
	if !ok {
		return
	}
	limit, offset, ok := c.pagination(services.DefaultUsageLimit, services.MaxUsageLimit)
	if !ok {
		return
	}
	period := c.GetString("period", "all")
	since, err := services.ParsePeriod(period, time.Now())
	if err != nil {
		c.JSONError(err)
		return
	}
	ctx := c.Ctx.Request.Context()

	views := []usageView{}
	var total int64
	stats := &services.UsageStats{TotalCost: decimal.Zero}

	user, err := c.Users.FindByWallet(ctx, wallet)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
	case err != nil:
		c.JSONError(err)
		return
	default:
		records, n, err := c.Usage.QueryRecent(ctx, user.ID, services.UsageQuery{Limit: limit, Offset: offset, Since: since})
		if err != nil {
			c.JSONError(err)
			return
		}
		total = n
		for _, r := range records {
			views = append(views, newUsageView(r, c.Pricing))
		}
		if stats, err = c.Usage.Stats(ctx, user.ID, since); err != nil {
			c.JSONError(err)
			return
		}
	}

	c.JSONSuccess(map[string]interface{}{
		"usage":      views,
		"pagination": newPagination(limit, offset, len(views), total),
		"stats": map[string]interface{}{
			"totalRequests":      stats.TotalRequests,
			"totalCost":          stats.TotalCost,
			"totalCostFormatted": c.Pricing.FormatAmount(stats.TotalCost),
			"totalTokens":        stats.TotalTokens,
			"avgExecutionTime":   stats.AvgExecutionTimeMs,
		},
		"period": period,
	})
}

// Stats GET /api/usage/stats
func (c *UsageController) Stats() {
	wallet, ok := c.walletQuery()
	if !ok {
		return
	}
	ctx := c.Ctx.Request.Context()
	now := time.Now().UTC()

	overall := &services.UsageStats{TotalCost: decimal.Zero}
	daily := []services.DailyUsage{}

	user, err := c.Users.FindByWallet(ctx, wallet)
	switch {
	case errors.Is(err, services.ErrUserNotFound):
	case err != nil:
		c.JSONError(err)
		return
	default:
		since := now.AddDate(0, 0, -30)
		if overall, err = c.Usage.Stats(ctx, user.ID, &since); err != nil {
			c.JSONError(err)
			return
		}
		if daily, err = c.Usage.DailyStats(ctx, user.ID, 7, now); err != nil {
			c.JSONError(err)
			return
		}
	}

	var (
		mostActive    *services.DailyUsage
		weeklyCost    = decimal.Zero
		weeklyRequest int64
	)
	for i := range daily {
		day := daily[i]
		weeklyRequest += day.Requests
		weeklyCost = weeklyCost.Add(day.Cost)
		if day.Requests > 0 && (mostActive == nil || day.Requests > mostActive.Requests) {
			mostActive = &daily[i]
		}
	}

	c.JSONSuccess(map[string]interface{}{
		"overall": map[string]interface{}{
			"totalRequests":      overall.TotalRequests,
			"totalCost":          overall.TotalCost,
			"totalCostFormatted": c.Pricing.FormatAmount(overall.TotalCost),
			"totalTokens":        overall.TotalTokens,
			"avgExecutionTime":   overall.AvgExecutionTimeMs,
			"period":             "30d",
		},
		"daily": daily,
		"summary": map[string]interface{}{
			"mostActiveDay":       mostActive,
			"totalWeeklyRequests": weeklyRequest,
			"totalWeeklyCost":     weeklyCost,
		},
	})
}

// AttachTx PUT /api/usage/:id/tx
func (c *UsageController) AttachTx() {
	id, ok := c.mustParseUintParam(":id")
	if !ok {
		return
	}
	var req attachTxRequest
	if !c.bindJSON(&req) {
		return
	}
	ctx := c.Ctx.Request.Context()

	user, err := c.Users.FindByWallet(ctx, req.WalletAddress)
	if err != nil {
		c.JSONError(err)
		return
	}

	record, err := c.Usage.AttachTxReference(ctx, id, user.ID, req.TxHash)
	if err != nil {
		c.JSONError(err)
		return
	}
	c.JSONSuccess(newUsageView(*record, c.Pricing))
}
