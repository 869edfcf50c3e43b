package database

import "gorm.io/gorm"

// Driver abstracts a relational database backend. Only SQLite ships today;
// the split keeps dialect-specific tuning out of the open path.
type Driver interface {
	// Name returns the backend name, e.g. "sqlite"
	Name() string

	// Open builds a GORM dialector for the given DSN
	Open(dsn string) (gorm.Dialector, error)

	// PreMigrationConfig applies settings that must be in place before
	// auto-migration runs (connection pool, journal mode). Foreign key
	// enforcement must stay off here so migration can reorder tables
	// freely.
	PreMigrationConfig(db *gorm.DB) error

	// PostMigrationConfig applies settings that depend on the final
	// schema, such as foreign key enforcement
	PostMigrationConfig(db *gorm.DB) error
}
