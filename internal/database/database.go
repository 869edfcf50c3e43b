// Package database provides database initialization and connection management.
// It uses GORM with SQLite for embedded storage behind a small Driver
// abstraction, so another relational backend can be added without touching
// callers.
package database

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/reviewpilot/reviewpilot/internal/model"
	"github.com/reviewpilot/reviewpilot/pkg/errors"
	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

// DefaultDBPath is the database file location used when database.path is
// not configured
const DefaultDBPath = "./data/reviewpilot.db"

var (
	db   *gorm.DB
	once sync.Once
)

// Init opens the database at DefaultDBPath and runs migrations. Repeated
// calls are no-ops; only the first one takes effect.
func Init() error {
	return InitWithPath(DefaultDBPath)
}

// InitWithPath opens the database at dbPath and runs migrations. The path
// normally comes from the database.path configuration key.
func InitWithPath(dbPath string) error {
	var initErr error
	once.Do(func() {
		initErr = open(&SQLiteDriver{}, dbPath)
	})
	return initErr
}

// failInit logs one failed initialization step and wraps it for callers.
func failInit(step string, err error) error {
	logger.Error("Database initialization failed", zap.String("step", step), zap.Error(err))
	return errors.Wrap(errors.ErrCodeDBConnection, step, err)
}

// open connects through the given driver, migrates the schema, and only
// then publishes the handle. A failed init leaves the package
// uninitialized instead of holding a half-configured connection.
func open(driver Driver, dbPath string) error {
	logger.Info("Initializing database",
		zap.String("driver", driver.Name()),
		zap.String("path", dbPath),
	)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return failInit("create database directory", err)
	}

	dialector, err := driver.Open(dbPath)
	if err != nil {
		return failInit("open database", err)
	}

	handle, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return failInit("connect to database", err)
	}

	if err := driver.PreMigrationConfig(handle); err != nil {
		return failInit("apply pre-migration config", err)
	}

	// Foreign keys are still off here; orphan records must not fail migration.
	if err := migrate(handle); err != nil {
		return err
	}

	if err := driver.PostMigrationConfig(handle); err != nil {
		return failInit("apply post-migration config", err)
	}

	db = handle
	logger.Info("Database initialized successfully", zap.String("driver", driver.Name()))
	return nil
}

// migrate runs auto-migration for every registered model
func migrate(handle *gorm.DB) error {
	models := model.AllModels()
	if err := handle.AutoMigrate(models...); err != nil {
		logger.Error("Database migration failed", zap.Error(err))
		return errors.Wrap(errors.ErrCodeDBMigration, "failed to run database migrations", err)
	}

	logger.Info("Database migrations completed", zap.Int("models", len(models)))
	return nil
}

// Get returns the database handle, panicking when Init has not run
func Get() *gorm.DB {
	if db == nil {
		panic("database not initialized, call Init first")
	}
	return db
}

// Close closes the database connection; safe to call before Init
func Close() error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	logger.Info("Closing database connection")
	return sqlDB.Close()
}

// ResetForTesting tears down the connection and re-arms Init so tests can
// initialize again. Never call this in production code.
func ResetForTesting() {
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		db = nil
	}
	once = sync.Once{}
}

// Transaction executes fn inside a transaction, rolling back on error
func Transaction(fn func(tx *gorm.DB) error) error {
	return Get().Transaction(fn)
}

// HealthCheck pings the database
func HealthCheck() error {
	if db == nil {
		return errors.New(errors.ErrCodeDBConnection, "database not initialized")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to get database connection", err)
	}
	return sqlDB.Ping()
}
