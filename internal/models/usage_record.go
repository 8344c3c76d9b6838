package models

import (
	"time"
)

// 使用记录状态
const (
	UsageStatusCompleted = "completed"
	UsageStatusFailed    = "failed"
	UsageStatusPending   = "pending"
)

// 支付路径
const (
	PaymentModeSimulated = "simulated"
	PaymentModeLedger    = "ledger"
)

// UsageRecord 使用审计记录，只追加
type UsageRecord struct {
	ID              uint      `gorm:"primaryKey;column:id" json:"id"`
	UserID          uint      `gorm:"column:user_id;not null;index" json:"userId"`
	PromptHash      string    `gorm:"column:prompt_hash;size:64;not null;index" json:"promptHash"`
	PromptPreview   string    `gorm:"column:prompt_preview;size:400" json:"promptPreview"`
	TokensEst       int       `gorm:"column:tokens_est;not null" json:"tokensEst"`
	Tier            string    `gorm:"column:tier;size:10" json:"tier"`
	CostAsset       string    `gorm:"column:cost_asset;size:12;not null;default:XLM" json:"costAsset"`
	CostAmount      int64     `gorm:"column:cost_amount;not null" json:"costAmount"`
	ResponsePreview string    `gorm:"column:response_preview;type:text" json:"responsePreview"`
	TxHash          *string   `gorm:"column:tx_hash;size:100;uniqueIndex" json:"txHash"`
	PaymentMode     string    `gorm:"column:payment_mode;size:20" json:"paymentMode"`
	Provider        string    `gorm:"column:provider;size:20" json:"provider"`
	Status          string    `gorm:"column:status;size:20;not null;default:completed" json:"status"`
	ExecutionTimeMs int64     `gorm:"column:execution_time_ms" json:"executionTimeMs"`
	CreatedAt       time.Time `gorm:"column:created_at;not null;index" json:"createdAt"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}
