// internal/database/database.go
package database

import (
	"fmt"
	"time"

	"translator-back/internal/config"
	"translator-back/internal/models"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitDB opens the database selected by the configuration.
func InitDB(cfg config.Config) (*gorm.DB, error) {
	switch cfg.DBDriver {
	case "sqlite":
		return Open("sqlite", cfg.DBPath)
	default:
		return Open("postgres", cfg.DatabaseURL)
	}
}

// Open connects with the named driver and configures the pool.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if driver == "postgres" {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// MigrateDB creates or updates every table.
func MigrateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// OpenInMemory returns a migrated SQLite database private to the caller.
// Each call gets its own shared-cache name so connections in one pool see
// the same data while separate callers stay isolated.
func OpenInMemory() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := MigrateDB(db); err != nil {
		return nil, err
	}
	return db, nil
}
