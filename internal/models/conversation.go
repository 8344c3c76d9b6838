package models

import (
	"time"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation 对话
type Conversation struct {
	ID            uint      `gorm:"primaryKey;column:id" json:"id"`
	UserID        uint      `gorm:"column:user_id;not null;index" json:"userId"`
	Title         string    `gorm:"column:title;size:255;not null" json:"title"`
	LastMessageAt time.Time `gorm:"column:last_message_at;not null;index" json:"lastMessageAt"`
	CreatedAt     time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updatedAt"`

	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message 对话消息
type Message struct {
	ID              uint      `gorm:"primaryKey;column:id" json:"id"`
	ConversationID  uint      `gorm:"column:conversation_id;not null;index" json:"conversationId"`
	Role            string    `gorm:"column:role;size:20;not null;check:chk_messages_role,role IN ('user','assistant')" json:"role"`
	Content         string    `gorm:"column:content;type:text;not null" json:"content"`
	Tokens          *int      `gorm:"column:tokens" json:"tokens,omitempty"`
	CostAmount      int64     `gorm:"column:cost_amount;not null;default:0" json:"costAmount"`
	CostAsset       string    `gorm:"column:cost_asset;size:12;not null;default:XLM" json:"costAsset"`
	TxHash          *string   `gorm:"column:tx_hash;size:100" json:"txHash,omitempty"`
	ExecutionTimeMs *int64    `gorm:"column:execution_time_ms" json:"executionTimeMs,omitempty"`
	CreatedAt       time.Time `gorm:"column:created_at;not null;index" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}
