package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ksred/autotrader-api/internal/database/migrations"
	"github.com/ksred/autotrader-api/internal/types"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Auto-migrate schemas
	err = db.AutoMigrate(
		&types.User{},
		&types.BrokerConnection{},
		&types.Order{},
		&types.Position{},
	)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := migrations.AddRecoveryIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
