package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"avenor/src/model"
)

// Connect opens the trade store and ensures the trades table exists. It is
// called once per process at startup; a failure here is fatal so a
// service never runs without its store (the execution service in particular
// must not accept orders it cannot persist).
func Connect(config Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(config.DatabaseURL),
		&gorm.Config{
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Error("Failed to get DB from GORM")
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	logrus.Info("[database] connection established")

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logrus.Info("[database] migrations completed")

	return db, nil
}

// Migrate ensures the trades table and its unique idempotency key index
// exist. Safe to run on every startup.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Trade{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}
