package db

import (
	"fmt"

	"token_ledger/internal/config"
	"token_ledger/internal/store"
	"token_ledger/internal/store/memory"
	"token_ledger/internal/store/mysql"
)

// NewStore builds the store selected by DB_DRIVER. The MySQL schema is
// migrated by cmd/migrate, not here.
func NewStore(cfg *config.Config) (store.Store, error) {
	switch cfg.DBDriver {
	case "memory":
		return memory.New(), nil
	case "mysql":
		conn, err := Open(cfg.DSN(), cfg.IsProd)
		if err != nil {
			return nil, fmt.Errorf("connect to MySQL: %w", err)
		}
		return mysql.New(conn), nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}
