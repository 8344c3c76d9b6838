package bootstrap

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/beego/beego/v2/server/web"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/aihub/ai-gateway/app/controllers"
	"github.com/aihub/ai-gateway/app/middleware"
	"github.com/aihub/ai-gateway/app/router"
	"github.com/aihub/ai-gateway/internal/config"
	"github.com/aihub/ai-gateway/internal/database"
	"github.com/aihub/ai-gateway/internal/di"
	"github.com/aihub/ai-gateway/internal/kafka"
	"github.com/aihub/ai-gateway/internal/logger"
	"github.com/aihub/ai-gateway/internal/services"
)

const shutdownTimeout = 10 * time.Second

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	Config       *config.Config
	container    *dig.Container
	loader       *config.Loader
	controllers  *controllers.Set
	cleanupTasks []func() error
}

// Init bootstraps configuration, logger, storage and the service graph.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	loader := config.NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	if err := logger.InitLogger(cfg.Log.Level, cfg.Server.Env); err != nil {
		return nil, err
	}

	app := &App{Config: cfg, loader: loader}

	if app.container, err = di.NewContainer(cfg); err != nil {
		return nil, err
	}

	// 先解析持有外部连接的组件，便于失败时回收
	err = app.container.Invoke(func(store *database.Store, rdb *redis.Client, producer *kafka.Producer) {
		app.cleanupTasks = append(app.cleanupTasks, store.Close)
		if rdb != nil {
			app.cleanupTasks = append(app.cleanupTasks, rdb.Close)
		}
		if producer != nil {
			app.cleanupTasks = append(app.cleanupTasks, producer.Close)
		}
		if err := store.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			logger.Warn("Failed to register database metrics", zap.Error(err))
		}
	})
	if err != nil {
		app.Shutdown()
		return nil, err
	}

	if app.controllers, err = controllers.NewControllerFactory(app.container).Build(); err != nil {
		app.Shutdown()
		return nil, err
	}

	if err := app.watchConfig(); err != nil {
		logger.Warn("Config watcher not started", zap.Error(err))
	}

	logger.Info("Application bootstrapped",
		zap.String("env", cfg.Server.Env),
		zap.String("network", cfg.Stellar.Network),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.String("database", cfg.Database.Driver))
	return app, nil
}

// watchConfig 配置文件变更时热更新计费
func (a *App) watchConfig() error {
	return a.container.Invoke(func(pricing *services.PricingService) error {
		a.loader.OnChange(func(_, newConfig *config.Config) {
			pricing.UpdateTariff(services.TariffFromConfig(newConfig.Pricing))
			logger.Info("Pricing tariff reloaded",
				zap.Float64("price_short", newConfig.Pricing.PriceShort),
				zap.Float64("price_long", newConfig.Pricing.PriceLong),
				zap.Int("short_limit_tokens", newConfig.Pricing.ShortLimitTokens))
		})
		return a.loader.Watch()
	})
}

// Run registers routes and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := router.Init(a.controllers, middleware.NewManager(a.Config.Server.CORSOrigins)); err != nil {
		return err
	}

	port, err := strconv.Atoi(a.Config.Server.Port)
	if err != nil {
		return err
	}
	web.BConfig.AppName = "ai-gateway"
	web.BConfig.CopyRequestBody = true
	web.BConfig.Listen.HTTPPort = port
	if a.Config.Server.IsProduction() {
		web.BConfig.RunMode = web.PROD
	}

	logger.Info("Starting AI gateway", zap.Int("port", port))
	stopped := make(chan struct{})
	go func() {
		web.Run()
		close(stopped)
	}()

	select {
	case <-stopped:
		return errors.New("http server stopped unexpectedly")
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return web.BeeApp.Server.Shutdown(shutdownCtx)
}

// Shutdown flushes/logs and closes resources gracefully.
func (a *App) Shutdown() {
	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}
	a.cleanupTasks = nil

	// Flush logger buffers.
	logger.Sync()
}
