package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aihub/ai-gateway/internal/models"
)

// PlaceholderPrefix 本地生成的交易引用前缀
const PlaceholderPrefix = "demo_"

// 分页上限
const (
	DefaultUsageLimit = 20
	MaxUsageLimit     = 100
)

var txHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// IsPlaceholderTx 是否为占位交易引用
func IsPlaceholderTx(ref string) bool {
	return strings.HasPrefix(ref, PlaceholderPrefix)
}

// UsageEntry 待写入的使用记录
type UsageEntry struct {
	PromptHash      string
	PromptPreview   string
	TokensEst       int
	Tier            Tier
	CostAsset       string
	CostAmount      decimal.Decimal
	ResponsePreview string
	TxHash          string
	PaymentMode     string
	Provider        string
	ExecutionTimeMs int64
}

// UsageQuery 分页查询条件
type UsageQuery struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// UsageStats 汇总统计
type UsageStats struct {
	TotalRequests      int64           `json:"totalRequests"`
	TotalCost          decimal.Decimal `json:"totalCost"`
	TotalTokens        int64           `json:"totalTokens"`
	AvgExecutionTimeMs float64         `json:"avgExecutionTime"`
}

// DailyUsage 单日统计
type DailyUsage struct {
	Date     string          `json:"date"`
	Requests int64           `json:"requests"`
	Cost     decimal.Decimal `json:"cost"`
	Tokens   int64           `json:"tokens"`
}

// UsageService 使用记录账本，只追加
type UsageService struct {
	db *gorm.DB
}

// NewUsageService 创建使用记录服务
func NewUsageService(db *gorm.DB) *UsageService {
	return &UsageService{db: db}
}

// Append 写入一条使用记录
func (s *UsageService) Append(ctx context.Context, userID uint, entry UsageEntry) (*models.UsageRecord, error) {
	record := models.UsageRecord{
		UserID:          userID,
		PromptHash:      entry.PromptHash,
		PromptPreview:   entry.PromptPreview,
		TokensEst:       entry.TokensEst,
		Tier:            string(entry.Tier),
		CostAsset:       entry.CostAsset,
		CostAmount:      models.ToStroops(entry.CostAmount),
		ResponsePreview: entry.ResponsePreview,
		PaymentMode:     entry.PaymentMode,
		Provider:        entry.Provider,
		Status:          models.UsageStatusCompleted,
		ExecutionTimeMs: entry.ExecutionTimeMs,
	}
	if entry.TxHash != "" {
		ref := entry.TxHash
		record.TxHash = &ref
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("写入使用记录失败: %w", err)
	}
	return &record, nil
}

// AttachTxReference 回填真实交易哈希，只能替换空值或占位引用
func (s *UsageService) AttachTxReference(ctx context.Context, recordID, userID uint, txHash string) (*models.UsageRecord, error) {
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if !txHashPattern.MatchString(txHash) {
		return nil, ErrInvalidTxHash
	}

	db := s.db.WithContext(ctx)
	result := db.Model(&models.UsageRecord{}).
		Where("id = ? AND user_id = ?", recordID, userID).
		Where("(tx_hash IS NULL OR tx_hash LIKE ?)", PlaceholderPrefix+"%").
		Update("tx_hash", txHash)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return nil, ErrTxAlreadyAttached
	}
	if result.Error != nil {
		return nil, fmt.Errorf("回填交易哈希失败: %w", result.Error)
	}

	var record models.UsageRecord
	err := db.Where("id = ? AND user_id = ?", recordID, userID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUsageLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询使用记录失败: %w", err)
	}
	if result.RowsAffected == 0 {
		return nil, ErrTxAlreadyAttached
	}
	return &record, nil
}

// QueryRecent 按时间倒序分页查询
func (s *UsageService) QueryRecent(ctx context.Context, userID uint, q UsageQuery) ([]models.UsageRecord, int64, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultUsageLimit
	}
	if q.Limit > MaxUsageLimit {
		q.Limit = MaxUsageLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	query := s.db.WithContext(ctx).Model(&models.UsageRecord{}).Where("user_id = ?", userID)
	if q.Since != nil {
		query = query.Where("created_at >= ?", q.Since.UTC())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计使用记录失败: %w", err)
	}

	var records []models.UsageRecord
	err := query.Order("created_at DESC").Order("id DESC").
		Limit(q.Limit).Offset(q.Offset).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询使用记录失败: %w", err)
	}
	return records, total, nil
}

// ParsePeriod 解析时间范围 all|today|7d|30d
func ParsePeriod(period string, now time.Time) (*time.Time, error) {
	now = now.UTC()
	var since time.Time
	switch period {
	case "", "all":
		return nil, nil
	case "today":
		since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case "7d":
		since = now.AddDate(0, 0, -7)
	case "30d":
		since = now.AddDate(0, 0, -30)
	default:
		return nil, ErrInvalidPeriod
	}
	return &since, nil
}

// Stats 汇总统计，since 为空时统计全部
func (s *UsageService) Stats(ctx context.Context, userID uint, since *time.Time) (*UsageStats, error) {
	var row struct {
		TotalRequests    int64
		TotalCost        int64
		TotalTokens      int64
		AvgExecutionTime float64
	}

	query := s.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Select("COUNT(*) AS total_requests, " +
			"COALESCE(SUM(cost_amount), 0) AS total_cost, " +
			"COALESCE(SUM(tokens_est), 0) AS total_tokens, " +
			"COALESCE(AVG(execution_time_ms), 0) AS avg_execution_time").
		Where("user_id = ?", userID)
	if since != nil {
		query = query.Where("created_at >= ?", since.UTC())
	}
	if err := query.Scan(&row).Error; err != nil {
		return nil, fmt.Errorf("统计使用记录失败: %w", err)
	}

	return &UsageStats{
		TotalRequests:      row.TotalRequests,
		TotalCost:          models.FromStroops(row.TotalCost),
		TotalTokens:        row.TotalTokens,
		AvgExecutionTimeMs: row.AvgExecutionTime,
	}, nil
}

// DailyStats 最近 days 天的按日统计，按日期升序
func (s *UsageService) DailyStats(ctx context.Context, userID uint, days int, now time.Time) ([]DailyUsage, error) {
	if days <= 0 {
		days = 7
	}
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(days - 1))

	var rows []struct {
		CostAmount int64
		TokensEst  int64
		CreatedAt  time.Time
	}
	err := s.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Select("cost_amount, tokens_est, created_at").
		Where("user_id = ? AND created_at >= ?", userID, start).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询使用记录失败: %w", err)
	}

	type bucket struct {
		requests, cost, tokens int64
	}
	buckets := make(map[string]*bucket, days)
	for _, r := range rows {
		key := r.CreatedAt.UTC().Format(time.DateOnly)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.requests++
		b.cost += r.CostAmount
		b.tokens += r.TokensEst
	}

	out := make([]DailyUsage, 0, len(buckets))
	for date, b := range buckets {
		out = append(out, DailyUsage{
			Date:     date,
			Requests: b.requests,
			Cost:     models.FromStroops(b.cost),
			Tokens:   b.tokens,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}
