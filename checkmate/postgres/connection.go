// File: connection.go
package postgres

import (
	"fmt"

	"github.com/CheckMateScan/go-api/checkmate/postgres/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Open opens a database connection and migrates the CheckMate schema.
// Tests use this with an in-memory sqlite DSN to get isolated databases.
func Open(driver, dsn string) (*gorm.DB, error) {
	var (
		conn *gorm.DB
		err  error
	)

	switch driver {
	case "postgres":
		conn, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		conn, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s database: %w", driver, err)
	}

	// sqlite serializes writers anyway; a single pooled connection avoids
	// SQLITE_BUSY and keeps in-memory databases visible across calls.
	if driver == "sqlite" {
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, fmt.Errorf("access sqlite connection pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := conn.AutoMigrate(
		&models.Scan{},
		&models.Flag{},
		&models.FeedbackEntry{},
		&models.WhitelistEntry{},
		&models.PrecisionHistoryPoint{},
		&models.Event{},
	); err != nil {
		return nil, fmt.Errorf("migrate database schema: %w", err)
	}

	return conn, nil
}
