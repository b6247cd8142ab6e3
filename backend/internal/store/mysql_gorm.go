package store

import (
	"fmt"

	driver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitMySQL 打开 gorm 连接；DSN 强制 parseTime 以便 DATETIME 直接映射为 time.Time
func InitMySQL(dsn string) (*gorm.DB, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	db, err := gorm.Open(mysql.Open(cfg.FormatDSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate 建表：operations、documents、edit_locks
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&OperationRecord{}, &DocumentRecord{}, &LockRecord{})
}
