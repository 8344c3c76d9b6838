package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aihub/ai-gateway/internal/config"
	"github.com/aihub/ai-gateway/internal/models"
)

// 支持的数据库驱动
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store 持久化存储句柄，启动时显式创建并注入各组件
type Store struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	driver string
	logger *logrus.Logger
}

// Open 打开数据库连接
func Open(cfg config.DatabaseConfig, logger *logrus.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.URL)
	case DriverSQLite:
		if err := ensureSQLiteDir(cfg.URL); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(cfg.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// SQLite 单写者
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.WithField("driver", cfg.Driver).Info("Database connected")
	return &Store{db: db, sqlDB: sqlDB, driver: cfg.Driver, logger: logger}, nil
}

// OpenInMemory 打开独立的内存 SQLite 存储
func OpenInMemory(name string) (*Store, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
	store, err := Open(config.DatabaseConfig{
		Driver: DriverSQLite,
		URL:    fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name),
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// DB 返回 gorm 句柄
func (s *Store) DB() *gorm.DB {
	return s.db
}

// SQLDB 返回底层 sql.DB
func (s *Store) SQLDB() *sql.DB {
	return s.sqlDB
}

// Driver 返回驱动名称
func (s *Store) Driver() string {
	return s.driver
}

// Migrate 创建或升级表结构
func (s *Store) Migrate() error {
	if s.driver == DriverPostgres {
		mm, err := NewMigrationManager(s.sqlDB, s.logger)
		if err != nil {
			return err
		}
		// 不关闭 mm，关闭会连带关闭共享的 sql.DB
		return mm.Up()
	}

	if err := s.db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}
	return nil
}

// RegisterMetrics 注册连接池指标
func (s *Store) RegisterMetrics(reg prometheus.Registerer) error {
	return reg.Register(collectors.NewDBStatsCollector(s.sqlDB, "gateway"))
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	s.logger.Info("Closing database connection")
	return s.sqlDB.Close()
}

func ensureSQLiteDir(dsn string) error {
	if strings.Contains(dsn, "mode=memory") || strings.Contains(dsn, ":memory:") {
		return nil
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}
