package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ecs/backend/internal/config"
	"ecs/backend/internal/domain"
	"ecs/backend/internal/storage"
)

// Store 基于 GORM 的关系型存储实现（支持 SQLite、PostgreSQL 和 MySQL）
type Store struct {
	db     *gorm.DB
	driver string
}

var _ storage.Store = (*Store)(nil)

// Open 根据配置选择方言并创建存储，启动时自动迁移表结构
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	dialector, err := newDialector(cfg)
	if err != nil {
		return nil, err
	}

	store, err := NewStoreWithDialector(dialector, cfg, log)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// newDialector 解析连接字符串并返回对应的 GORM dialector
func newDialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	switch cfg.Driver {
	case "sqlite":
		return sqlite.Open(sqliteDSN(cfg.DSN)), nil

	case "postgres":
		pgxConfig, err := pgx.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
		}
		return postgres.New(postgres.Config{Conn: stdlib.OpenDB(*pgxConfig)}), nil

	case "mysql":
		mysqlConfig, err := mysqldriver.ParseDSN(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to parse mysql DSN: %w", err)
		}
		// 时间字段统一按 UTC 解析
		mysqlConfig.ParseTime = true
		mysqlConfig.Loc = time.UTC
		if mysqlConfig.Params == nil {
			mysqlConfig.Params = map[string]string{}
		}
		if _, ok := mysqlConfig.Params["charset"]; !ok {
			mysqlConfig.Params["charset"] = "utf8mb4"
		}
		return mysql.Open(mysqlConfig.FormatDSN()), nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// sqliteDSN 开启外键约束，级联删除依赖它
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on"
}

// NewStoreWithDialector 使用指定的GORM dialector创建存储实例，不执行迁移
func NewStoreWithDialector(dialector gorm.Dialector, cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	level := gormlogger.Silent
	if cfg.LogQueries {
		level = gormlogger.Info
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.New(zap.NewStdLog(log.Named("gorm")), gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		TranslateError: true,
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	configurePool(sqlDB, cfg, dialector.Name())

	return &Store{db: db, driver: dialector.Name()}, nil
}

// configurePool 配置连接池；SQLite 只允许单连接，避免内存库丢失与写锁竞争
func configurePool(sqlDB *sql.DB, cfg config.DatabaseConfig, driver string) {
	if driver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		return
	}

	maxOpen, maxIdle, lifetime := cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime
	if maxOpen <= 0 {
		maxOpen = 25
	}
	if maxIdle <= 0 {
		maxIdle = 5
	}
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(lifetime)
}

// Migrate 自动迁移数据库表结构
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&domain.Department{},
		&domain.User{},
		&domain.Contact{},
		&domain.Correspondence{},
		&domain.Attachment{},
		&domain.ActivityLog{},
		&domain.SystemSetting{},
	)
}

// DB 返回底层 GORM 实例
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Driver 返回方言名称
func (s *Store) Driver() string {
	return s.driver
}

// Health 检查数据库健康状态
func (s *Store) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isDuplicate 判断唯一约束冲突；方言未翻译时按错误文本兜底
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

// notFound 将 gorm.ErrRecordNotFound 映射为业务错误
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
