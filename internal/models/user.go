package models

import (
	"time"
)

// User 钱包用户
type User struct {
	ID            uint      `gorm:"primaryKey;column:id" json:"id"`
	WalletAddress string    `gorm:"column:wallet_address;size:56;not null;uniqueIndex" json:"walletAddress"`
	Name          *string   `gorm:"column:name;size:100" json:"name,omitempty"`
	Email         *string   `gorm:"column:email;size:255" json:"email,omitempty"`
	Bio           *string   `gorm:"column:bio;type:text" json:"bio,omitempty"`
	AvatarURL     *string   `gorm:"column:avatar_url;size:500" json:"avatarUrl,omitempty"`
	CreatedAt     time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updatedAt"`

	Balances []Balance `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// Balance 离线余额，按 (用户, 资产) 唯一，金额单位为 stroop
type Balance struct {
	ID        uint      `gorm:"primaryKey;column:id" json:"id"`
	UserID    uint      `gorm:"column:user_id;not null;uniqueIndex:idx_balances_user_asset" json:"userId"`
	Asset     string    `gorm:"column:asset;size:12;not null;default:XLM;uniqueIndex:idx_balances_user_asset" json:"asset"`
	Amount    int64     `gorm:"column:amount;not null;default:0;check:chk_balances_amount,amount >= 0" json:"amount"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (Balance) TableName() string {
	return "balances"
}
