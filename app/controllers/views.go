package controllers

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aihub/ai-gateway/internal/models"
	"github.com/aihub/ai-gateway/internal/services"
)

// usageView 使用记录响应
type usageView struct {
	ID              uint            `json:"id"`
	PromptHash      string          `json:"promptHash"`
	PromptPreview   string          `json:"promptPreview"`
	ResponsePreview string          `json:"responsePreview"`
	Tokens          int             `json:"tokens"`
	Tier            string          `json:"tier"`
	Cost            decimal.Decimal `json:"cost"`
	CostFormatted   string          `json:"costFormatted"`
	Asset           string          `json:"asset"`
	Status          string          `json:"status"`
	PaymentMode     string          `json:"paymentMode"`
	Provider        string          `json:"provider"`
	ExecutionTime   int64           `json:"executionTime"`
	TxHash          *string         `json:"txHash"`
	PlaceholderTx   bool            `json:"placeholderTx"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func newUsageView(r models.UsageRecord, pricing *services.PricingService) usageView {
	cost := models.FromStroops(r.CostAmount)
	view := usageView{
		ID:              r.ID,
		PromptHash:      r.PromptHash,
		PromptPreview:   r.PromptPreview,
		ResponsePreview: r.ResponsePreview,
		Tokens:          r.TokensEst,
		Tier:            r.Tier,
		Cost:            cost,
		CostFormatted:   pricing.FormatAmount(cost),
		Asset:           r.CostAsset,
		Status:          r.Status,
		PaymentMode:     r.PaymentMode,
		Provider:        r.Provider,
		ExecutionTime:   r.ExecutionTimeMs,
		TxHash:          r.TxHash,
		CreatedAt:       r.CreatedAt,
	}
	view.PlaceholderTx = r.TxHash == nil || services.IsPlaceholderTx(*r.TxHash)
	return view
}

// messageView 对话消息响应
type messageView struct {
	ID             uint            `json:"id"`
	ConversationID uint            `json:"conversationId"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	Tokens         *int            `json:"tokens,omitempty"`
	Cost           decimal.Decimal `json:"cost"`
	Asset          string          `json:"asset"`
	TxHash         *string         `json:"txHash,omitempty"`
	ExecutionTime  *int64          `json:"executionTime,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

func newMessageView(m models.Message) messageView {
	return messageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		Tokens:         m.Tokens,
		Cost:           models.FromStroops(m.CostAmount),
		Asset:          m.CostAsset,
		TxHash:         m.TxHash,
		ExecutionTime:  m.ExecutionTimeMs,
		CreatedAt:      m.CreatedAt,
	}
}

func newMessageViews(messages []models.Message) []messageView {
	views := make([]messageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, newMessageView(m))
	}
	return views
}

type paginationView struct {
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"hasMore"`
}

func newPagination(limit, offset, returned int, total int64) paginationView {
	return paginationView{
		Limit:   limit,
		Offset:  offset,
		Total:   total,
		HasMore: int64(offset+returned) < total,
	}
}
