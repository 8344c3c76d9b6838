package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aihub/ai-gateway/internal/logger"
	"github.com/aihub/ai-gateway/internal/middleware"
	"github.com/aihub/ai-gateway/internal/models"
)

// Sufficiency 余额检查结果
type Sufficiency struct {
	Sufficient bool             `json:"sufficient"`
	Current    decimal.Decimal  `json:"current"`
	Required   decimal.Decimal  `json:"required"`
	Deficit    *decimal.Decimal `json:"deficit,omitempty"`
}

// TopUpResult 充值结果
type TopUpResult struct {
	WalletAddress string          `json:"walletAddress"`
	Balance       decimal.Decimal `json:"balance"`
	Added         decimal.Decimal `json:"added"`
	Asset         string          `json:"asset"`
}

// CreditsService 离线余额账本
type CreditsService struct {
	db       *gorm.DB
	cache    *middleware.BalanceCache
	users    *UserService
	maxTopUp decimal.Decimal
	logger   *zap.Logger
}

// NewCreditsService 创建离线余额服务
func NewCreditsService(db *gorm.DB, cache *middleware.BalanceCache, users *UserService, maxTopUp decimal.Decimal) *CreditsService {
	return &CreditsService{
		db:       db,
		cache:    cache,
		users:    users,
		maxTopUp: maxTopUp,
		logger:   logger.Named("credits"),
	}
}

// GetBalance 获取余额，无记录时为 0
func (s *CreditsService) GetBalance(ctx context.Context, userID uint, asset string) (decimal.Decimal, error) {
	if cached, ok, err := s.cache.Get(ctx, userID, asset); err != nil {
		s.logger.Warn("读取余额缓存失败", zap.Uint("user_id", userID), zap.Error(err))
	} else if ok {
		return models.FromStroops(cached), nil
	}

	amount, err := s.loadAmount(s.db.WithContext(ctx), userID, asset)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.cache.Fill(ctx, userID, asset, amount); err != nil {
		s.logger.Warn("回填余额缓存失败", zap.Uint("user_id", userID), zap.Error(err))
	}
	return models.FromStroops(amount), nil
}

// Credit 增加余额，行不存在时创建
func (s *CreditsService) Credit(ctx context.Context, userID uint, asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	stroops := models.ToStroops(amount)
	if stroops <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}

	var after int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := models.Balance{UserID: userID, Asset: asset, Amount: stroops}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "asset"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"amount":     gorm.Expr("balances.amount + excluded.amount"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}

		after, err = s.loadAmount(tx, userID, asset)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("增加余额失败: %w", err)
	}

	s.forget(ctx, userID, asset)
	return models.FromStroops(after), nil
}

// Debit 原子扣减余额，余额不足时不做任何修改
func (s *CreditsService) Debit(ctx context.Context, userID uint, asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	stroops := models.ToStroops(amount)
	if stroops <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}

	var after int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 条件更新保证并发扣减不会透支
		result := tx.Model(&models.Balance{}).
			Where("user_id = ? AND asset = ? AND amount >= ?", userID, asset, stroops).
			UpdateColumns(map[string]interface{}{
				"amount":     gorm.Expr("amount - ?", stroops),
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}

		current, err := s.loadAmount(tx, userID, asset)
		if err != nil {
			return err
		}
		if result.RowsAffected == 0 {
			return NewInsufficientBalanceError(amount, models.FromStroops(current), asset, SourceOffchain)
		}
		after = current
		return nil
	})

	var insufficient *InsufficientBalanceError
	if errors.As(err, &insufficient) {
		return decimal.Zero, err
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("扣减余额失败: %w", err)
	}

	s.forget(ctx, userID, asset)
	return models.FromStroops(after), nil
}

// CheckSufficient 只读检查，扣减时仍会原子地重新检查
func (s *CreditsService) CheckSufficient(ctx context.Context, userID uint, asset string, amount decimal.Decimal) (*Sufficiency, error) {
	current, err := s.GetBalance(ctx, userID, asset)
	if err != nil {
		return nil, err
	}

	result := &Sufficiency{
		Sufficient: current.GreaterThanOrEqual(amount),
		Current:    current,
		Required:   amount,
	}
	if !result.Sufficient {
		deficit := amount.Sub(current)
		result.Deficit = &deficit
	}
	return result, nil
}

// TopUp 模拟充值，单次不超过上限
func (s *CreditsService) TopUp(ctx context.Context, wallet, asset string, amount decimal.Decimal) (*TopUpResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if amount.GreaterThan(s.maxTopUp) {
		return nil, ErrAmountTooHigh
	}

	user, err := s.users.FindByWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}

	balance, err := s.Credit(ctx, user.ID, asset, amount)
	if err != nil {
		return nil, err
	}

	s.logger.Info("余额充值成功",
		zap.String("wallet", wallet),
		zap.String("amount", amount.String()),
		zap.String("balance", balance.String()))
	return &TopUpResult{WalletAddress: wallet, Balance: balance, Added: amount, Asset: asset}, nil
}

// MaxTopUp 单次充值上限
func (s *CreditsService) MaxTopUp() decimal.Decimal {
	return s.maxTopUp
}

func (s *CreditsService) loadAmount(db *gorm.DB, userID uint, asset string) (int64, error) {
	var balance models.Balance
	err := db.Where("user_id = ? AND asset = ?", userID, asset).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance.Amount, nil
}

// forget 变更提交后删除缓存，由下次读取回填
func (s *CreditsService) forget(ctx context.Context, userID uint, asset string) {
	if err := s.cache.Invalidate(context.WithoutCancel(ctx), userID, asset); err != nil {
		s.logger.Warn("删除余额缓存失败", zap.Uint("user_id", userID), zap.Error(err))
	}
}
