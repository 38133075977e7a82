package db

import (
	"token_ledger/internal/domain" // Importing domain models

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
	"gorm.io/gorm/logger"  // GORM log levels
)

// Open connects to MySQL. Every write goes through an explicit transaction,
// so GORM's implicit per-statement transaction is skipped.
func Open(dsn string, quiet bool) (*gorm.DB, error) {
	cfg := &gorm.Config{SkipDefaultTransaction: true}
	if quiet {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	return gorm.Open(mysql.Open(dsn), cfg)
}

// Migrate creates or updates the ledger schema
func Migrate(db *gorm.DB) error {
	// AutoMigrate will create tables, missing columns and indexes
	return db.AutoMigrate(&domain.Wallet{}, &domain.LedgerEntry{}, &domain.Call{}, &domain.Ticket{})
}
