package config

import "time"

// Config 网关配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	JWT      JWTConfig      `mapstructure:"jwt" validate:"required"`
	Stellar  StellarConfig  `mapstructure:"stellar" validate:"required"`
	AI       AIConfig       `mapstructure:"ai" validate:"required"`
	Pricing  PricingConfig  `mapstructure:"pricing" validate:"required"`
	Credits  CreditsConfig  `mapstructure:"credits" validate:"required"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        string   `mapstructure:"port" validate:"required"`
	Env         string   `mapstructure:"env" validate:"required,oneof=development staging production"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// IsProduction 是否为生产环境
func (s ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"required,oneof=sqlite postgres"`
	URL             string        `mapstructure:"url" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	BalanceTTL time.Duration `mapstructure:"balance_ttl"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret     string        `mapstructure:"secret" validate:"required"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// StellarConfig 账本网络配置
type StellarConfig struct {
	Network               string        `mapstructure:"network" validate:"required,oneof=testnet public"`
	HorizonURL            string        `mapstructure:"horizon_url" validate:"required,url"`
	SettlementDestination string        `mapstructure:"settlement_destination"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	TxTimeout             time.Duration `mapstructure:"tx_timeout"`
	MinTransactionBalance float64       `mapstructure:"min_transaction_balance"`
	FriendbotURL          string        `mapstructure:"friendbot_url"`
}

// AIConfig AI提供商配置
type AIConfig struct {
	Provider     string        `mapstructure:"provider" validate:"required,oneof=ollama openai mock"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	Ollama       OllamaConfig  `mapstructure:"ollama"`
	OpenAI       OpenAIConfig  `mapstructure:"openai"`
	Mock         MockConfig    `mapstructure:"mock"`
	Breaker      BreakerConfig `mapstructure:"breaker"`
}

// OllamaConfig 本地推理配置
type OllamaConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OpenAIConfig OpenAI兼容接口配置
type OpenAIConfig struct {
	APIBase string        `mapstructure:"api_base"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MockConfig 模拟提供商配置
type MockConfig struct {
	MinDelay time.Duration `mapstructure:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay"`
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	MaxFailures  int           `mapstructure:"max_failures"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

// PricingConfig 计费配置
type PricingConfig struct {
	PriceShort       float64 `mapstructure:"price_short" validate:"gte=0"`
	PriceLong        float64 `mapstructure:"price_long" validate:"gte=0"`
	ShortLimitTokens int     `mapstructure:"short_limit_tokens" validate:"gte=0"`
	MaxPromptLength  int     `mapstructure:"max_prompt_length" validate:"gt=0"`
}

// CreditsConfig 离线余额配置
type CreditsConfig struct {
	Asset          string  `mapstructure:"asset" validate:"required"`
	InitialBalance float64 `mapstructure:"initial_balance" validate:"gte=0"`
	MaxTopUp       float64 `mapstructure:"max_topup" validate:"gt=0"`
}
