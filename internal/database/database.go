package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/solswap/swap-api/internal/queue"
	"github.com/solswap/swap-api/internal/types"
)

// NewDatabase initializes and returns a new GORM DB connection at the given
// path and migrates the order and queue task schemas.
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&types.Order{},
		&queue.Task{},
	); err != nil {
		return nil, err
	}

	return db, nil
}
