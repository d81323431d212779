package storage

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Gopher0727/BirthdayBox/config"
	"github.com/Gopher0727/BirthdayBox/internal/model"
)

// InitPostgres opens the pool, applies pool limits and migrates the three
// tables. TranslateError makes duplicate-key and foreign-key failures
// comparable with gorm.ErrDuplicatedKey and gorm.ErrForeignKeyViolated.
func InitPostgres(dsn string, maxIdleConns, maxOpenConns int, logLevel string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(gormLogLevel(logLevel)),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// order matters: purchases reference messages, premium rows reference purchases
	if err := db.AutoMigrate(
		&model.Message{},
		&model.Purchase{},
		&model.PremiumMessage{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return db, nil
}

// BuildDSN builds a key/value postgres DSN from the config section.
func BuildDSN(cfg config.PostgresConfig) string {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslmode)
}

// gormLogLevel keeps SQL tracing out of the service log unless debugging.
func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error", "fatal":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}
