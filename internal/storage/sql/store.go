package sql

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	gormmysql "gorm.io/driver/mysql"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tempinbox/backend/internal/domain"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *gorm.DB
	sqlDB      *sql.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建 SQL 数据库存储并执行自动迁移。
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	gormConfig := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true, // 唯一索引冲突翻译为 gorm.ErrDuplicatedKey
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	if driverName == "mysql" {
		db, err = gorm.Open(gormmysql.Open(dsn), gormConfig)
	} else {
		db, err = gorm.Open(gormpostgres.Open(dsn), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{
		db:         db,
		sqlDB:      sqlDB,
		driverName: driverName,
	}

	if err := store.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 执行数据库迁移（使用 GORM AutoMigrate）
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&domain.Subscription{},
		&domain.Mailbox{},
		&domain.Message{},
		&domain.Attachment{},
		&domain.GenerationRecord{},
		&domain.CustomDomain{},
		&jwtBlacklistEntry{},
	)
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.sqlDB != nil {
		return s.sqlDB.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	if s.sqlDB == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.sqlDB.Ping()
}

// jwtBlacklistEntry JWT 黑名单表
type jwtBlacklistEntry struct {
	JTI       string    `gorm:"primaryKey;type:varchar(64)"`
	ExpiresAt time.Time `gorm:"index"`
}

// AddToBlacklist 将 jti 加入黑名单。
func (s *Store) AddToBlacklist(jti string, ttl time.Duration) error {
	entry := jwtBlacklistEntry{JTI: jti, ExpiresAt: time.Now().UTC().Add(ttl)}
	return s.db.Save(&entry).Error
}

// IsBlacklisted 判断 jti 是否在黑名单内。
func (s *Store) IsBlacklisted(jti string) (bool, error) {
	var count int64
	err := s.db.Model(&jwtBlacklistEntry{}).
		Where("jti = ? AND expires_at > ?", jti, time.Now().UTC()).
		Count(&count).Error
	return count > 0, err
}
