package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/aihub/ai-gateway/internal/ai"
	apperrors "github.com/aihub/ai-gateway/internal/errors"
	"github.com/aihub/ai-gateway/internal/kafka"
	"github.com/aihub/ai-gateway/internal/logger"
	"github.com/aihub/ai-gateway/internal/models"
	"github.com/aihub/ai-gateway/internal/stellar"
)

const (
	promptPreviewRunes   = 90
	responsePreviewRunes = 200
)

// LedgerGateway 支付编排使用的账本操作
type LedgerGateway interface {
	RealBalance(ctx context.Context, secret string) (*stellar.RealBalance, error)
	BuildPaymentTransaction(ctx context.Context, source string, amount decimal.Decimal) (string, error)
	SignAndSubmit(ctx context.Context, xdr, secret string) (*stellar.SubmitResult, error)
}

// TextGenerator 文本生成
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (*ai.Result, error)
}

// UsagePublisher 使用事件发布
type UsagePublisher interface {
	PublishUsage(ctx context.Context, event *kafka.UsageEvent) error
}

// CompletionRequest 付费补全请求
type CompletionRequest struct {
	WalletAddress string
	Prompt        string
	SecretKey     string
}

// PaymentOutcome 扣费阶段的结果，SimulatedPayment 或 LedgerPayment
type PaymentOutcome interface {
	Mode() string
	isPaymentOutcome()
}

// SimulatedPayment 离线余额扣费
type SimulatedPayment struct {
	UserID       uint
	Asset        string
	Debited      decimal.Decimal
	BalanceAfter decimal.Decimal
}

func (SimulatedPayment) Mode() string    { return models.PaymentModeSimulated }
func (SimulatedPayment) isPaymentOutcome() {}

// LedgerPayment 链上余额已校验，结算在生成成功后进行
type LedgerPayment struct {
	SignerAddress string
	LedgerBalance decimal.Decimal
	Cost          decimal.Decimal
}

func (LedgerPayment) Mode() string    { return models.PaymentModeLedger }
func (LedgerPayment) isPaymentOutcome() {}

// CompletionResult 补全结果
type CompletionResult struct {
	Response        string          `json:"response"`
	Cost            decimal.Decimal `json:"cost"`
	Tokens          int             `json:"tokens"`
	Tier            Tier            `json:"tier"`
	BalanceAfter    decimal.Decimal `json:"balanceAfter"`
	ExecutionTimeMs int64           `json:"executionTime"`
	PromptHash      string          `json:"promptHash"`
	TxHash          string          `json:"txHash"`
	PaymentMode     string          `json:"paymentMode"`
	Provider        string          `json:"provider"`
	Model           string          `json:"model"`
	SettlementError string          `json:"settlementError,omitempty"`
	UsageRecordID   *uint           `json:"usageRecordId,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// PaymentService 支付编排：校验、扣费、生成、退款或结算、记录
type PaymentService struct {
	pricing   *PricingService
	credits   *CreditsService
	users     *UserService
	usage     *UsageService
	ledger    LedgerGateway
	generator TextGenerator
	publisher UsagePublisher
	logger    *zap.Logger
}

// NewPaymentService 创建支付编排服务
func NewPaymentService(
	pricing *PricingService,
	credits *CreditsService,
	users *UserService,
	usage *UsageService,
	ledger LedgerGateway,
	generator TextGenerator,
	publisher UsagePublisher,
) *PaymentService {
	return &PaymentService{
		pricing:   pricing,
		credits:   credits,
		users:     users,
		usage:     usage,
		ledger:    ledger,
		generator: generator,
		publisher: publisher,
		logger:    logger.Named("payment"),
	}
}

// Complete 执行一次付费补全
func (s *PaymentService) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	start := time.Now()
	req.SecretKey = strings.TrimSpace(req.SecretKey)
	if err := s.Validate(req); err != nil {
		return nil, err
	}

	// 客户端断开不中断已开始的扣费、生成和结算
	ctx = context.WithoutCancel(ctx)
	quote := s.pricing.EstimateCost(req.Prompt)

	var (
		outcome PaymentOutcome
		err     error
	)
	if req.SecretKey != "" {
		outcome, err = s.checkLedgerBalance(ctx, req.SecretKey, quote.Cost)
	} else {
		outcome, err = s.debitOffchain(ctx, req.WalletAddress, quote.Cost)
	}
	mode := modeOf(req)
	if err != nil {
		paymentsTotal.WithLabelValues(mode, outcomeLabel(err)).Inc()
		return nil, err
	}

	generated, err := s.generator.Generate(ctx, strings.TrimSpace(req.Prompt))
	if err != nil {
		refunded := s.refund(ctx, outcome)
		paymentsTotal.WithLabelValues(mode, "ai_unavailable").Inc()
		return nil, &AIUnavailableError{Refunded: refunded, Err: err}
	}

	result := &CompletionResult{
		Response:        generated.Text,
		Cost:            quote.Cost,
		Tokens:          quote.Tokens,
		Tier:            quote.Tier,
		ExecutionTimeMs: generated.ExecutionTimeMs,
		PromptHash:      HashPrompt(req.Prompt),
		PaymentMode:     outcome.Mode(),
		Provider:        generated.Provider,
		Model:           generated.Model,
		Timestamp:       time.Now().UTC(),
	}

	var userID uint
	switch p := outcome.(type) {
	case *SimulatedPayment:
		userID = p.UserID
		result.BalanceAfter = p.BalanceAfter
		result.TxHash = NewPlaceholderTx()
	case *LedgerPayment:
		result.BalanceAfter = p.LedgerBalance.Sub(p.Cost)
		txHash, settleErr := s.settle(ctx, req.WalletAddress, req.SecretKey, p.Cost)
		if settleErr != nil {
			reason := settlementReason(settleErr)
			settlementFailures.WithLabelValues(reason).Inc()
			s.logger.Warn("链上结算失败，使用占位交易引用",
				zap.String("wallet", req.WalletAddress),
				zap.String("reason", reason),
				zap.Error(settleErr))
			txHash = NewPlaceholderTx()
			result.SettlementError = settleErr.Error()
		}
		result.TxHash = txHash
		if user, err := s.users.FindByWallet(ctx, req.WalletAddress); err == nil {
			userID = user.ID
		}
	}

	if userID != 0 {
		s.recordUsage(ctx, userID, req, quote, result, time.Since(start).Milliseconds())
	} else {
		s.logger.Warn("钱包未注册，跳过使用记录", zap.String("wallet", req.WalletAddress))
	}

	paymentsTotal.WithLabelValues(mode, "completed").Inc()
	completionDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	return result, nil
}

// Validate 校验请求，不产生副作用
func (s *PaymentService) Validate(req CompletionRequest) error {
	if req.WalletAddress == "" || req.Prompt == "" {
		return &InvalidInputError{Code: string(apperrors.ErrCodeMissingRequired), Message: "walletAddress and prompt are required"}
	}
	if !stellar.IsValidAddress(req.WalletAddress) {
		return &InvalidInputError{Code: string(apperrors.ErrCodeInvalidAddress), Message: "invalid Stellar address"}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return &InvalidInputError{Code: string(apperrors.ErrCodeInvalidPrompt), Message: "prompt must be non-empty text"}
	}
	if limit := s.pricing.MaxPromptLength(); utf8.RuneCountInString(req.Prompt) > limit {
		return &InvalidInputError{
			Code:    string(apperrors.ErrCodePromptTooLong),
			Message: fmt.Sprintf("prompt too long (maximum %d characters)", limit),
		}
	}
	if secret := strings.TrimSpace(req.SecretKey); secret != "" {
		if _, err := stellar.ParseSecret(secret); err != nil {
			return &InvalidInputError{Code: string(apperrors.ErrCodeInvalidSecretKey), Message: err.Error()}
		}
	}
	return nil
}

func (s *PaymentService) debitOffchain(ctx context.Context, wallet string, cost decimal.Decimal) (PaymentOutcome, error) {
	asset := s.pricing.Asset()
	user, err := s.users.FindByWallet(ctx, wallet)
	if errors.Is(err, ErrUserNotFound) {
		return nil, NewInsufficientBalanceError(cost, decimal.Zero, asset, SourceOffchain)
	}
	if err != nil {
		return nil, err
	}

	after, err := s.credits.Debit(ctx, user.ID, asset, cost)
	if err != nil {
		return nil, err
	}
	return &SimulatedPayment{UserID: user.ID, Asset: asset, Debited: cost, BalanceAfter: after}, nil
}

func (s *PaymentService) checkLedgerBalance(ctx context.Context, secret string, cost decimal.Decimal) (PaymentOutcome, error) {
	asset := s.pricing.Asset()
	balance, err := s.ledger.RealBalance(ctx, secret)
	if err != nil {
		var notFound *stellar.AccountNotFoundError
		var invalidKey *stellar.InvalidKeyError
		switch {
		case errors.As(err, &notFound):
			return nil, NewInsufficientBalanceError(cost, decimal.Zero, asset, SourceLedger)
		case errors.As(err, &invalidKey):
			return nil, &InvalidInputError{Code: string(apperrors.ErrCodeInvalidSecretKey), Message: err.Error()}
		default:
			return nil, &LedgerUnavailableError{Err: err}
		}
	}

	if balance.NativeBalance.LessThan(cost) {
		return nil, NewInsufficientBalanceError(cost, balance.NativeBalance, asset, SourceLedger)
	}
	return &LedgerPayment{SignerAddress: balance.Address, LedgerBalance: balance.NativeBalance, Cost: cost}, nil
}

func (s *PaymentService) refund(ctx context.Context, outcome PaymentOutcome) bool {
	p, ok := outcome.(*SimulatedPayment)
	if !ok {
		return false
	}

	if _, err := s.credits.Credit(ctx, p.UserID, p.Asset, p.Debited); err != nil {
		refundsTotal.WithLabelValues("failed").Inc()
		s.logger.Error("退款失败",
			zap.Uint("user_id", p.UserID),
			zap.String("amount", p.Debited.String()),
			zap.Error(err))
		return false
	}
	refundsTotal.WithLabelValues("succeeded").Inc()
	s.logger.Info("AI调用失败，已退款", zap.Uint("user_id", p.UserID), zap.String("amount", p.Debited.String()))
	return true
}

func (s *PaymentService) settle(ctx context.Context, source, secret string, cost decimal.Decimal) (string, error) {
	xdr, err := s.ledger.BuildPaymentTransaction(ctx, source, cost)
	if err != nil {
		return "", err
	}
	submitted, err := s.ledger.SignAndSubmit(ctx, xdr, secret)
	if err != nil {
		return "", err
	}
	if !submitted.Success {
		return "", fmt.Errorf("transaction %s was not successful", submitted.TxHash)
	}
	return submitted.TxHash, nil
}

func (s *PaymentService) recordUsage(ctx context.Context, userID uint, req CompletionRequest, quote Quote, result *CompletionResult, elapsedMs int64) {
	record, err := s.usage.Append(ctx, userID, UsageEntry{
		PromptHash:      result.PromptHash,
		PromptPreview:   previewRunes(req.Prompt, promptPreviewRunes),
		TokensEst:       quote.Tokens,
		Tier:            quote.Tier,
		CostAsset:       s.pricing.Asset(),
		CostAmount:      quote.Cost,
		ResponsePreview: previewRunes(result.Response, responsePreviewRunes),
		TxHash:          result.TxHash,
		PaymentMode:     result.PaymentMode,
		Provider:        result.Provider,
		ExecutionTimeMs: elapsedMs,
	})
	if err != nil {
		s.logger.Error("写入使用记录失败", zap.Uint("user_id", userID), zap.Error(err))
		return
	}
	result.UsageRecordID = &record.ID

	if s.publisher == nil {
		return
	}
	event := &kafka.UsageEvent{
		UsageRecordID: record.ID,
		UserID:        userID,
		WalletAddress: req.WalletAddress,
		PromptHash:    result.PromptHash,
		Tokens:        quote.Tokens,
		Tier:          string(quote.Tier),
		CostAmount:    quote.Cost.String(),
		CostAsset:     s.pricing.Asset(),
		TxHash:        result.TxHash,
		PaymentMode:   result.PaymentMode,
		Provider:      result.Provider,
		Settled:       !IsPlaceholderTx(result.TxHash),
		ExecutionMs:   elapsedMs,
		Timestamp:     result.Timestamp,
	}
	if err := s.publisher.PublishUsage(ctx, event); err != nil {
		s.logger.Warn("发布使用事件失败", zap.Uint("usage_record_id", record.ID), zap.Error(err))
	}
}

// HashPrompt 提示词 SHA-256 的前 16 位十六进制
func HashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:16]
}

// NewPlaceholderTx 生成占位交易引用 demo_<毫秒时间戳>_<9位随机串>
func NewPlaceholderTx() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s%d_%s", PlaceholderPrefix, time.Now().UnixMilli(), suffix)
}

func previewRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func modeOf(req CompletionRequest) string {
	if strings.TrimSpace(req.SecretKey) != "" {
		return models.PaymentModeLedger
	}
	return models.PaymentModeSimulated
}

func outcomeLabel(err error) string {
	var insufficient *InsufficientBalanceError
	var unavailable *LedgerUnavailableError
	var invalid *InvalidInputError
	switch {
	case errors.As(err, &insufficient):
		return "insufficient_balance"
	case errors.As(err, &unavailable):
		return "ledger_unavailable"
	case errors.As(err, &invalid):
		return "invalid_input"
	default:
		return "error"
	}
}

func settlementReason(err error) string {
	var (
		notFound   *stellar.AccountNotFoundError
		reserve    *stellar.InsufficientReserveError
		mismatch   *stellar.KeyMismatchError
		rejected   *stellar.SubmissionRejectedError
		network    *stellar.NetworkError
		invalidKey *stellar.InvalidKeyError
	)
	switch {
	case errors.As(err, &notFound):
		return "account_not_found"
	case errors.As(err, &reserve):
		return "insufficient_reserve"
	case errors.As(err, &mismatch):
		return "key_mismatch"
	case errors.As(err, &rejected):
		return "submission_rejected"
	case errors.As(err, &network):
		return "network"
	case errors.As(err, &invalidKey):
		return "invalid_key"
	case errors.Is(err, stellar.ErrInvalidTransaction):
		return "invalid_transaction"
	default:
		return "other"
	}
}
