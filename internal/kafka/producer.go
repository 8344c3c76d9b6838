package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/aihub/ai-gateway/internal/logger"
)

// UsageEvent 计费完成事件
type UsageEvent struct {
	UsageRecordID uint      `json:"usage_record_id"`
	UserID        uint      `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	PromptHash    string    `json:"prompt_hash"`
	Tokens        int       `json:"tokens"`
	Tier          string    `json:"tier"`
	CostAmount    string    `json:"cost_amount"`
	CostAsset     string    `json:"cost_asset"`
	TxHash        string    `json:"tx_hash"`
	PaymentMode   string    `json:"payment_mode"`
	Provider      string    `json:"provider"`
	Settled       bool      `json:"settled"`
	ExecutionMs   int64     `json:"execution_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// Producer Kafka生产者
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer 连接Kafka并创建同步生产者
func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("创建Kafka生产者失败: %w", err)
	}

	logger.Info("Kafka生产者初始化成功", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return NewProducerWithClient(producer, topic), nil
}

// NewProducerWithClient 使用已有的 sarama 生产者
func NewProducerWithClient(producer sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: producer, topic: topic}
}

// PublishUsage 发布使用事件，未配置Kafka时直接返回
func (p *Producer) PublishUsage(ctx context.Context, event *UsageEvent) error {
	if p == nil || p.producer == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.WalletAddress),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("payment_mode"), Value: []byte(event.PaymentMode)},
			{Key: []byte("provider"), Value: []byte(event.Provider)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("发送消息失败: %w", err)
	}

	logger.Debug("Kafka消息发送成功",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.Uint("usage_record_id", event.UsageRecordID))
	return nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
