package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/aihub/ai-gateway/internal/errors"
	"github.com/aihub/ai-gateway/internal/logger"
	"github.com/aihub/ai-gateway/internal/models"
	"github.com/aihub/ai-gateway/internal/stellar"
)

const lastMessagePreviewRunes = 100

// ConversationSummary 对话列表项
type ConversationSummary struct {
	models.Conversation
	MessageCount int64  `json:"messageCount"`
	LastMessage  string `json:"lastMessage,omitempty"`
}

// ConversationReply 对话中一次付费问答的结果
type ConversationReply struct {
	UserMessage      models.Message    `json:"userMessage"`
	AssistantMessage models.Message    `json:"assistantMessage"`
	Completion       *CompletionResult `json:"completion"`
}

// ConversationService 对话服务
type ConversationService struct {
	db       *gorm.DB
	users    *UserService
	payments *PaymentService
	logger   *zap.Logger
}

// NewConversationService 创建对话服务
func NewConversationService(db *gorm.DB, users *UserService, payments *PaymentService) *ConversationService {
	return &ConversationService{
		db:       db,
		users:    users,
		payments: payments,
		logger:   logger.Named("conversation"),
	}
}

// Create 创建对话，用户不存在时自动创建
func (s *ConversationService) Create(ctx context.Context, wallet, title string) (*models.Conversation, error) {
	if !stellar.IsValidAddress(wallet) {
		return nil, &InvalidInputError{Code: string(apperrors.ErrCodeInvalidAddress), Message: "invalid Stellar address"}
	}

	user, _, err := s.users.FindOrCreate(ctx, wallet)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if title == "" {
		title = "Conversation " + now.Format("2006-01-02 15:04")
	}

	conv := models.Conversation{UserID: user.ID, Title: title, LastMessageAt: now}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, fmt.Errorf("创建对话失败: %w", err)
	}
	return &conv, nil
}

// List 按最近活动倒序列出对话
func (s *ConversationService) List(ctx context.Context, wallet string, limit, offset int) ([]ConversationSummary, int64, error) {
	user, err := s.users.FindByWallet(ctx, wallet)
	if errors.Is(err, ErrUserNotFound) {
		return []ConversationSummary{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	if limit <= 0 || limit > MaxUsageLimit {
		limit = DefaultUsageLimit
	}
	if offset < 0 {
		offset = 0
	}

	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.Conversation{}).Where("user_id = ?", user.ID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计对话失败: %w", err)
	}

	var convs []models.Conversation
	err = db.Where("user_id = ?", user.ID).
		Order("last_message_at DESC").Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&convs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询对话失败: %w", err)
	}

	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summary := ConversationSummary{Conversation: c}
		if err := db.Model(&models.Message{}).Where("conversation_id = ?", c.ID).Count(&summary.MessageCount).Error; err != nil {
			return nil, 0, fmt.Errorf("统计消息失败: %w", err)
		}

		var last []models.Message
		if err := db.Where("conversation_id = ?", c.ID).Order("created_at DESC").Order("id DESC").Limit(1).Find(&last).Error; err != nil {
			return nil, 0, fmt.Errorf("查询消息失败: %w", err)
		}
		if len(last) > 0 {
			summary.LastMessage = previewRunes(last[0].Content, lastMessagePreviewRunes)
		}
		out = append(out, summary)
	}
	return out, total, nil
}

// Messages 返回对话消息，按时间升序
func (s *ConversationService) Messages(ctx context.Context, id uint, wallet string) (*models.Conversation, []models.Message, error) {
	conv, err := s.owned(ctx, id, wallet)
	if err != nil {
		return nil, nil, err
	}

	var messages []models.Message
	err = s.db.WithContext(ctx).Where("conversation_id = ?", conv.ID).
		Order("created_at ASC").Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, nil, fmt.Errorf("查询消息失败: %w", err)
	}
	return conv, messages, nil
}

// SendMessage 在对话中发起付费问答并保存双方消息
func (s *ConversationService) SendMessage(ctx context.Context, id uint, req CompletionRequest) (*ConversationReply, error) {
	if err := s.payments.Validate(req); err != nil {
		return nil, err
	}
	conv, err := s.owned(ctx, id, req.WalletAddress)
	if err != nil {
		return nil, err
	}

	completion, err := s.payments.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	tokens := completion.Tokens
	var txHash *string
	if completion.TxHash != "" {
		ref := completion.TxHash
		txHash = &ref
	}
	execMs := completion.ExecutionTimeMs
	now := time.Now().UTC()

	reply := &ConversationReply{
		UserMessage: models.Message{
			ConversationID: conv.ID,
			Role:           models.RoleUser,
			Content:        req.Prompt,
			Tokens:         &tokens,
			CostAmount:     models.ToStroops(completion.Cost),
			CostAsset:      s.payments.pricing.Asset(),
			TxHash:         txHash,
			CreatedAt:      now,
		},
		AssistantMessage: models.Message{
			ConversationID:  conv.ID,
			Role:            models.RoleAssistant,
			Content:         completion.Response,
			CostAsset:       s.payments.pricing.Asset(),
			ExecutionTimeMs: &execMs,
			CreatedAt:       now,
		},
		Completion: completion,
	}

	err = s.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&reply.UserMessage).Error; err != nil {
			return err
		}
		if err := tx.Create(&reply.AssistantMessage).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
			Updates(map[string]interface{}{"last_message_at": now, "updated_at": now}).Error
	})
	if err != nil {
		// 已付费的回答仍然返回
		s.logger.Error("保存对话消息失败",
			zap.Uint("conversation_id", conv.ID),
			zap.String("tx_hash", completion.TxHash),
			zap.Error(err))
	}
	return reply, nil
}

// Delete 删除对话及其消息
func (s *ConversationService) Delete(ctx context.Context, id uint, wallet string) error {
	conv, err := s.owned(ctx, id, wallet)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conv.ID).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("删除消息失败: %w", err)
		}
		if err := tx.Delete(&models.Conversation{}, conv.ID).Error; err != nil {
			return fmt.Errorf("删除对话失败: %w", err)
		}
		return nil
	})
}

// owned 查询属于该钱包的对话，其他用户的对话视为不存在
func (s *ConversationService) owned(ctx context.Context, id uint, wallet string) (*models.Conversation, error) {
	user, err := s.users.FindByWallet(ctx, wallet)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}

	var conv models.Conversation
	err = s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, user.ID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询对话失败: %w", err)
	}
	return &conv, nil
}
