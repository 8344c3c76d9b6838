package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/aihub/ai-gateway/internal/logger"
)

// UpdateCallback 配置更新回调
type UpdateCallback func(oldConfig, newConfig *Config)

// Loader 配置加载器
type Loader struct {
	viper     *viper.Viper
	validator *validator.Validate
	config    *Config
	callbacks []UpdateCallback
	watching  bool
	mu        sync.RWMutex
}

// legacyEnv 兼容旧版本的环境变量名
var legacyEnv = map[string][]string{
	"server.port":                    {"PORT"},
	"server.env":                     {"APP_ENV", "NODE_ENV"},
	"server.cors_origins":            {"CORS_ORIGINS"},
	"database.url":                   {"DATABASE_URL", "DB_PATH"},
	"redis.addr":                     {"REDIS_ADDR"},
	"kafka.brokers":                  {"KAFKA_BROKERS"},
	"jwt.secret":                     {"JWT_SECRET"},
	"stellar.network":                {"STELLAR_NETWORK"},
	"stellar.horizon_url":            {"STELLAR_HORIZON_URL"},
	"stellar.settlement_destination": {"STELLAR_SETTLEMENT_DESTINATION"},
	"ai.provider":                    {"AI_PROVIDER"},
	"ai.ollama.base_url":             {"OLLAMA_BASE_URL"},
	"ai.ollama.model":                {"OLLAMA_MODEL"},
	"ai.openai.api_base":             {"OPENAI_API_BASE"},
	"ai.openai.api_key":              {"OPENAI_API_KEY"},
	"ai.openai.model":                {"OPENAI_MODEL"},
	"pricing.price_short":            {"PRICE_SHORT_XLM"},
	"pricing.price_long":             {"PRICE_LONG_XLM"},
	"pricing.short_limit_tokens":     {"SHORT_LIMIT_TOKENS"},
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("GATEWAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return &Loader{
		viper:     v,
		validator: validator.New(),
	}
}

// Load 从默认值、环境变量和配置文件加载配置
func (l *Loader) Load() (*Config, error) {
	setDefaults(l.viper)

	for key, names := range legacyEnv {
		args := append([]string{key, "GATEWAY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := l.viper.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		l.viper.SetConfigFile(configFile)
		if err := l.viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()

	return cfg, nil
}

// Current 返回当前配置
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// OnChange 注册配置更新回调
func (l *Loader) OnChange(cb UpdateCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, cb)
}

// Watch 监听配置文件变化，未指定配置文件时不做任何事
func (l *Loader) Watch() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.viper.ConfigFileUsed() == "" {
		return nil
	}
	if l.watching {
		return fmt.Errorf("config watcher is already running")
	}

	l.viper.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("配置文件已变更", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		if err := l.reload(); err != nil {
			logger.Error("配置重新加载失败", zap.Error(err))
		}
	})
	l.viper.WatchConfig()
	l.watching = true
	return nil
}

func (l *Loader) reload() error {
	cfg, err := l.decode()
	if err != nil {
		return err
	}

	l.mu.Lock()
	old := l.config
	l.config = cfg
	callbacks := make([]UpdateCallback, len(l.callbacks))
	copy(callbacks, l.callbacks)
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(old, cfg)
	}
	return nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Stellar.Network = normalizeNetwork(cfg.Stellar.Network)
	if err := l.validator.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// normalizeNetwork mainnet/pubnet 视为 public
func normalizeNetwork(network string) string {
	switch n := strings.ToLower(strings.TrimSpace(network)); n {
	case "mainnet", "pubnet":
		return "public"
	default:
		return n
	}
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3001")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.cors_origins", []string{
		"http://localhost:5173",
		"http://localhost:3000",
		"http://127.0.0.1:5173",
		"http://127.0.0.1:3000",
	})
	v.SetDefault("log.level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "file:./data/ai-gateway.db?_pragma=foreign_keys(1)")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.balance_ttl", "5m")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "ai-gateway.usage")

	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiration", "24h")

	v.SetDefault("stellar.network", "testnet")
	v.SetDefault("stellar.horizon_url", "https://horizon-testnet.stellar.org")
	v.SetDefault("stellar.settlement_destination", "")
	v.SetDefault("stellar.request_timeout", "30s")
	v.SetDefault("stellar.tx_timeout", "180s")
	v.SetDefault("stellar.min_transaction_balance", 0.0001)
	v.SetDefault("stellar.friendbot_url", "https://friendbot.stellar.org")

	v.SetDefault("ai.provider", "ollama")
	v.SetDefault("ai.probe_timeout", "5s")
	v.SetDefault("ai.ollama.base_url", "http://localhost:11434")
	v.SetDefault("ai.ollama.model", "llama3.2:1b")
	v.SetDefault("ai.ollama.timeout", "120s")
	v.SetDefault("ai.openai.api_base", "https://api.openai.com/v1")
	v.SetDefault("ai.openai.api_key", "")
	v.SetDefault("ai.openai.model", "gpt-3.5-turbo")
	v.SetDefault("ai.openai.timeout", "30s")
	v.SetDefault("ai.mock.min_delay", "1s")
	v.SetDefault("ai.mock.max_delay", "3s")
	v.SetDefault("ai.breaker.max_failures", 5)
	v.SetDefault("ai.breaker.reset_timeout", "60s")

	v.SetDefault("pricing.price_short", 0.02)
	v.SetDefault("pricing.price_long", 0.05)
	v.SetDefault("pricing.short_limit_tokens", 300)
	v.SetDefault("pricing.max_prompt_length", 10000)

	v.SetDefault("credits.asset", "XLM")
	v.SetDefault("credits.initial_balance", 5.0)
	v.SetDefault("credits.max_topup", 10.0)
}
