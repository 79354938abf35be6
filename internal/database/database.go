package database

import (
	"fmt"

	"github.com/NadavAzoulay124/portfolio.AI/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(dsn string) (*gorm.DB, error) {
	// TranslateError surfaces unique-index violations as gorm.ErrDuplicatedKey,
	// which the ledger relies on to detect create races.
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate brings the schema up to date. The positions table is durable
// state, so existing rows are kept across restarts.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Position{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}
