package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aihub/ai-gateway/internal/logger"
	"github.com/aihub/ai-gateway/internal/models"
)

// UserService 钱包用户服务
type UserService struct {
	db             *gorm.DB
	asset          string
	initialBalance decimal.Decimal
}

// NewUserService 创建用户服务
func NewUserService(db *gorm.DB, asset string, initialBalance decimal.Decimal) *UserService {
	return &UserService{db: db, asset: asset, initialBalance: initialBalance}
}

// FindByWallet 按钱包地址查找用户
func (s *UserService) FindByWallet(ctx context.Context, wallet string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &user, nil
}

// FindOrCreate 查找用户，不存在时创建并发放初始余额
func (s *UserService) FindOrCreate(ctx context.Context, wallet string) (*models.User, bool, error) {
	user, err := s.FindByWallet(ctx, wallet)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	created := models.User{WalletAddress: wallet}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&created).Error; err != nil {
			return err
		}
		seed := models.ToStroops(s.initialBalance)
		return tx.Create(&models.Balance{UserID: created.ID, Asset: s.asset, Amount: seed}).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// 并发创建，读取已存在的用户
		user, err := s.FindByWallet(ctx, wallet)
		return user, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("创建用户失败: %w", err)
	}

	logger.Info("新用户已创建",
		zap.String("wallet", wallet),
		zap.Uint("user_id", created.ID),
		zap.String("initial_balance", s.initialBalance.String()))
	return &created, true, nil
}
