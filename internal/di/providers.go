package di

import (
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"

	"github.com/aihub/ai-gateway/internal/ai"
	"github.com/aihub/ai-gateway/internal/auth"
	"github.com/aihub/ai-gateway/internal/config"
	"github.com/aihub/ai-gateway/internal/database"
	"github.com/aihub/ai-gateway/internal/kafka"
	"github.com/aihub/ai-gateway/internal/middleware"
	"github.com/aihub/ai-gateway/internal/services"
	"github.com/aihub/ai-gateway/internal/stellar"
)

// TokenIssuer 会话 token 的签发者
const TokenIssuer = "ai-gateway"

// NewContainer 创建容器并注册网关的全部依赖
func NewContainer(cfg *config.Config) (*dig.Container, error) {
	container := dig.New()
	if err := registerProviders(container, cfg); err != nil {
		return nil, err
	}
	return container, nil
}

func registerProviders(container *dig.Container, cfg *config.Config) error {
	providers := []interface{}{
		func() *config.Config { return cfg },
		newStoreLogger,
		openStore,
		func(cfg *config.Config, log *logrus.Logger) (*redis.Client, error) {
			return database.OpenRedis(cfg.Redis, log)
		},
		func(cfg *config.Config, rdb *redis.Client) *middleware.BalanceCache {
			return middleware.NewBalanceCache(rdb, cfg.Redis.BalanceTTL)
		},
		newProducer,
		func(store *database.Store, rdb *redis.Client, log *logrus.Logger) *database.HealthChecker {
			return database.NewHealthChecker(store.SQLDB(), rdb, log)
		},
		func(cfg *config.Config) (*stellar.Client, error) {
			return stellar.NewClient(cfg.Stellar)
		},
		func(cfg *config.Config) *ai.Service {
			return ai.NewService(cfg.AI)
		},
		func(cfg *config.Config) (*auth.JWTService, error) {
			return auth.NewJWTService(cfg.JWT.Secret, TokenIssuer, cfg.JWT.Expiration)
		},
		func(cfg *config.Config) *services.PricingService {
			return services.NewPricingService(services.TariffFromConfig(cfg.Pricing), cfg.Credits.Asset, cfg.Stellar.Network)
		},
		func(cfg *config.Config, store *database.Store) *services.UserService {
			return services.NewUserService(store.DB(), cfg.Credits.Asset, decimal.NewFromFloat(cfg.Credits.InitialBalance))
		},
		func(cfg *config.Config, store *database.Store, cache *middleware.BalanceCache, users *services.UserService) *services.CreditsService {
			return services.NewCreditsService(store.DB(), cache, users, decimal.NewFromFloat(cfg.Credits.MaxTopUp))
		},
		func(store *database.Store) *services.UsageService {
			return services.NewUsageService(store.DB())
		},
		newPaymentService,
		func(store *database.Store, users *services.UserService, payments *services.PaymentService) *services.ConversationService {
			return services.NewConversationService(store.DB(), users, payments)
		},
	}

	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

// newStoreLogger 存储层使用 logrus
func newStoreLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.Server.IsProduction() {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(lvl)
	}
	return log
}

// openStore 打开存储并执行迁移
func openStore(cfg *config.Config, log *logrus.Logger) (*database.Store, error) {
	store, err := database.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// newProducer 未启用 Kafka 时返回 nil，发布为空操作
func newProducer(cfg *config.Config) (*kafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	return kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
}

func newPaymentService(
	pricing *services.PricingService,
	credits *services.CreditsService,
	users *services.UserService,
	usage *services.UsageService,
	ledger *stellar.Client,
	generator *ai.Service,
	producer *kafka.Producer,
) *services.PaymentService {
	return services.NewPaymentService(pricing, credits, users, usage, ledger, generator, producer)
}
