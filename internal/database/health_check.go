package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// HealthChecker 存储健康检查器
type HealthChecker struct {
	db        *sql.DB
	redis     *redis.Client
	logger    *logrus.Logger
	timeout   time.Duration
	isHealthy bool
	lastCheck time.Time
	lastError error
	mu        sync.RWMutex
}

// ComponentHealth 单个组件的检查结果
type ComponentHealth struct {
	Healthy      bool   `json:"healthy"`
	Error        string `json:"error,omitempty"`
	ResponseTime string `json:"responseTime"`
}

// HealthCheckResult 健康检查结果
type HealthCheckResult struct {
	Healthy   bool             `json:"healthy"`
	LastCheck time.Time        `json:"lastCheck"`
	Database  ComponentHealth  `json:"database"`
	Redis     *ComponentHealth `json:"redis,omitempty"`
}

// NewHealthChecker 创建健康检查器，rdb 可以为 nil
func NewHealthChecker(db *sql.DB, rdb *redis.Client, logger *logrus.Logger) *HealthChecker {
	return &HealthChecker{
		db:      db,
		redis:   rdb,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Check 执行一次健康检查
func (hc *HealthChecker) Check(ctx context.Context) HealthCheckResult {
	ctx, cancel := context.WithTimeout(ctx, hc.timeout)
	defer cancel()

	result := HealthCheckResult{LastCheck: time.Now()}
	result.Database = probe(func() error { return hc.db.PingContext(ctx) })
	result.Healthy = result.Database.Healthy

	if hc.redis != nil {
		redisHealth := probe(func() error { return hc.redis.Ping(ctx).Err() })
		result.Redis = &redisHealth
		// Redis 只是缓存，不影响整体健康状态
		if !redisHealth.Healthy {
			hc.logger.WithField("error", redisHealth.Error).Warn("Redis health check failed")
		}
	}

	hc.mu.Lock()
	wasHealthy := hc.isHealthy
	hc.isHealthy = result.Healthy
	hc.lastCheck = result.LastCheck
	if result.Healthy {
		hc.lastError = nil
	} else {
		hc.lastError = errors.New(result.Database.Error)
	}
	hc.mu.Unlock()

	switch {
	case !result.Healthy:
		hc.logger.WithFields(logrus.Fields{
			"error":         result.Database.Error,
			"response_time": result.Database.ResponseTime,
		}).Warn("Database health check failed")
	case !wasHealthy:
		hc.logger.WithField("response_time", result.Database.ResponseTime).Info("Database connection restored")
	}

	return result
}

// IsHealthy 获取最近一次检查的状态
func (hc *HealthChecker) IsHealthy() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.isHealthy
}

// LastError 最近一次检查的错误
func (hc *HealthChecker) LastError() error {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.lastError
}

func probe(fn func() error) ComponentHealth {
	start := time.Now()
	err := fn()
	h := ComponentHealth{Healthy: err == nil, ResponseTime: time.Since(start).String()}
	if err != nil {
		h.Error = err.Error()
	}
	return h
}
