// Package database 负责创建关系库与 Redis 连接句柄。句柄由调用方持有并在退出时关闭。
package database

import (
	"fmt"
	"strings"
	"time"

	"catalog-assist-go/internal/config"
	"catalog-assist-go/internal/model"
	"catalog-assist-go/pkg/log"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB 根据 driver 打开 MySQL 或 SQLite 连接，并配置连接池。
func OpenDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.MySQL.DSN)
	case "sqlite":
		dialector = sqlite.Open(sqliteDSN(cfg.SQLite.Path))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// SQLite 只允许单写者；内存库在多个连接间不共享
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
	}

	log.Infof("%s database connected successfully", cfg.Driver)
	return db, nil
}

func sqliteDSN(path string) string {
	if path == "" || path == ":memory:" {
		return ":memory:"
	}
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// AutoMigrate 创建或更新所有业务表。
func AutoMigrate(db *gorm.DB) error {
	start := time.Now()
	err := db.AutoMigrate(
		&model.User{},
		&model.CatalogItem{},
		&model.Document{},
		&model.Chunk{},
		&model.ChunkVector{},
		&model.ConversationTurn{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	log.Infof("数据库表结构迁移完成, 耗时 %s", time.Since(start))
	return nil
}

// CloseDB 关闭底层连接池。
func CloseDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
