// Package db
package db

import (
	"database/sql"
	"fmt"

	"github.com/amirphl/zeta-trader/internal/db/conf"
	"github.com/amirphl/zeta-trader/internal/journal"
	"github.com/amirphl/zeta-trader/internal/state"
)

// Storage is the interface for all persistent storage.
type Storage interface {
	GetDB() *sql.DB
	journal.Store
	state.KV
}

// Open returns the storage selected by c.Driver. The memory driver needs no
// connection; SQL drivers get their schema migrated.
func Open(c conf.Config) (Storage, error) {
	switch c.Driver {
	case conf.DriverMemory:
		return NewMemory(), nil
	case conf.DriverPostgres, conf.DriverSQLite:
		if c.DB == nil {
			return nil, fmt.Errorf("no connection for driver %s", c.Driver)
		}
		return New(c)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", c.Driver)
	}
}
