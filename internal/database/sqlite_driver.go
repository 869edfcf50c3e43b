package database

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reviewpilot/reviewpilot/pkg/logger"
)

// busyTimeout is how long SQLite waits on a locked database before giving
// up with SQLITE_BUSY. External readers (backups, ad hoc queries) can hold
// the lock briefly even with a single in-process writer.
const busyTimeout = 5 * time.Second

// SQLiteDriver implements Driver for the embedded SQLite backend
type SQLiteDriver struct{}

// Name returns the driver name
func (d *SQLiteDriver) Name() string {
	return "sqlite"
}

// Open builds the SQLite dialector
func (d *SQLiteDriver) Open(dsn string) (gorm.Dialector, error) {
	return sqlite.Open(dsn), nil
}

// PreMigrationConfig tunes the connection before auto-migration runs.
// Foreign keys stay disabled at this stage so existing orphan records
// cannot fail the migration.
func (d *SQLiteDriver) PreMigrationConfig(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	// A single connection serializes in-process writers
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(1)

	// WAL lets readers proceed while a write is in flight
	applyPragma(db, "journal_mode", "PRAGMA journal_mode = WAL")
	applyPragma(db, "synchronous", "PRAGMA synchronous = NORMAL")
	applyPragma(db, "busy_timeout", fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()))

	logger.Info("SQLite pre-migration config applied",
		zap.String("journal_mode", "WAL"),
		zap.String("synchronous", "NORMAL"),
		zap.Duration("busy_timeout", busyTimeout),
	)
	return nil
}

// PostMigrationConfig enables constraints that require the final schema
func (d *SQLiteDriver) PostMigrationConfig(db *gorm.DB) error {
	applyPragma(db, "foreign_keys", "PRAGMA foreign_keys = ON")

	logger.Info("SQLite post-migration config applied",
		zap.Bool("foreign_keys", true),
	)
	return nil
}

// applyPragma executes one PRAGMA statement. Failures are logged rather
// than fatal: the database still works without the tuning.
func applyPragma(db *gorm.DB, name, stmt string) {
	if err := db.Exec(stmt).Error; err != nil {
		logger.Warn("Failed to apply SQLite pragma",
			zap.String("pragma", name),
			zap.Error(err),
		)
	}
}
