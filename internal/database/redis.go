package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aihub/ai-gateway/internal/config"
)

// OpenRedis 打开Redis连接，未启用时返回nil
func OpenRedis(cfg config.RedisConfig, logger *logrus.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		logger.Info("Redis disabled, balance cache off")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.WithField("addr", cfg.Addr).Info("Redis connected")
	return rdb, nil
}
