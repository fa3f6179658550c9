// Package conf
package conf

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"testing"
	"time"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds a database connection and metadata
type Config struct {
	Driver  string
	Name    string
	DB      *sql.DB
	ConnStr string
	AdminDB *sql.DB
}

// NewConfig opens and pings a connection for driver. The memory driver
// returns a Config without a connection.
func NewConfig(driver, connStr string, maxOpen, maxIdle int) (*Config, error) {
	if driver == "" || driver == DriverMemory {
		return &Config{Driver: DriverMemory}, nil
	}
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
	if connStr == "" {
		return nil, fmt.Errorf("missing connection string for driver %s", driver)
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}
	return &Config{Driver: driver, DB: db, ConnStr: connStr}, nil
}

// NewTestConfig creates a postgres database with a random name. The admin
// connection is read from DB_TEST_CONN_STR; the test is skipped when it is
// unset or unreachable. Callers must import the postgres driver.
func NewTestConfig(t *testing.T) (*Config, func()) {
	t.Helper()

	adminConnStr := os.Getenv("DB_TEST_CONN_STR")
	if adminConnStr == "" {
		t.Skip("Skipping test: DB_TEST_CONN_STR is not set")
		return nil, func() {}
	}

	adminDB, err := sql.Open(DriverPostgres, adminConnStr)
	if err != nil {
		t.Fatalf("Failed to connect to postgres: %v", err)
	}
	if err := adminDB.Ping(); err != nil {
		adminDB.Close()
		t.Skipf("Skipping test: PostgreSQL is not running or not accessible: %v", err)
		return nil, func() {}
	}

	// Generate random database name to avoid conflicts
	dbName := fmt.Sprintf("test_db_%d", rand.Int31())
	if _, err := adminDB.Exec(fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		adminDB.Close()
		t.Fatalf("Failed to create test database: %v", err)
	}

	dbConnStr := withDatabase(adminConnStr, dbName)
	db, err := sql.Open(DriverPostgres, dbConnStr)
	if err != nil {
		adminDB.Close()
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	cfg := &Config{
		Driver:  DriverPostgres,
		Name:    dbName,
		DB:      db,
		ConnStr: dbConnStr,
		AdminDB: adminDB,
	}
	cleanup := func() {
		db.Close()
		if _, err := adminDB.Exec(fmt.Sprintf("DROP DATABASE %s WITH (FORCE)", dbName)); err != nil {
			t.Logf("Warning: Failed to drop test database %s: %v", dbName, err)
		}
		adminDB.Close()
	}
	return cfg, cleanup
}

// withDatabase replaces dbname in a key=value connection string.
func withDatabase(connStr, dbName string) string {
	var parts []string
	for _, kv := range strings.Fields(connStr) {
		if !strings.HasPrefix(kv, "dbname=") {
			parts = append(parts, kv)
		}
	}
	return strings.Join(append(parts, "dbname="+dbName), " ")
}
