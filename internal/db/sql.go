package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/amirphl/zeta-trader/internal/db/conf"
	"github.com/amirphl/zeta-trader/internal/journal"
)

// Transaction context key
type txKey struct{}

// WithTransaction adds a transaction to the context
func WithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTransaction retrieves a transaction from context, or returns nil if not present
func GetTransaction(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// executeWithTransaction executes a function with proper transaction management
// If a transaction exists in context, it uses that. Otherwise, it creates a new one.
func (p *Default) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if tx := GetTransaction(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}

	return nil
}

// queryWithTransaction executes a query using transaction from context if available
func (p *Default) queryWithTransaction(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryContext(ctx, query, args...)
	}
	return p.db.QueryContext(ctx, query, args...)
}

func (p *Default) queryRowWithTransaction(ctx context.Context, query string, args ...any) *sql.Row {
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryRowContext(ctx, query, args...)
	}
	return p.db.QueryRowContext(ctx, query, args...)
}

// Default is the SQL storage used for both Postgres and SQLite.
type Default struct {
	db *sql.DB
	d  dialect
}

// New wraps c.DB and migrates the schema.
func New(c conf.Config) (*Default, error) {
	d := postgresDialect
	if c.Driver == conf.DriverSQLite {
		d = sqliteDialect
	}
	p := &Default{db: c.DB, d: d}
	if err := p.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Default) GetDB() *sql.DB {
	return p.db
}

// Migrate creates the tables when missing.
func (p *Default) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(p.d.schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %q: %w", stmt, err)
		}
	}
	return nil
}

// SaveTrades inserts trades in one transaction. Trades already stored are
// skipped, so a retried batch does not duplicate rows.
func (p *Default) SaveTrades(ctx context.Context, trades []journal.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, p.d.insertTrade)
		if err != nil {
			return fmt.Errorf("failed to prepare insert statement: %w", err)
		}
		defer stmt.Close()

		for i, t := range trades {
			_, err := stmt.ExecContext(ctx,
				t.ID, t.Timestamp.UTC(), t.Symbol, t.EntryPrice, t.ExitPrice, t.EntrySize,
				t.PnL, t.PnLPct, t.Fees, t.ExitReason, t.Mode)
			if err != nil {
				return fmt.Errorf("failed to save trade at index %d (%s %s): %w", i, t.Symbol, t.ID, err)
			}
		}
		return nil
	})
}

// GetTrades returns the trades of symbol ordered by close time.
func (p *Default) GetTrades(ctx context.Context, symbol string) ([]journal.TradeRecord, error) {
	rows, err := p.queryWithTransaction(ctx, p.d.selectTrade, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []journal.TradeRecord
	for rows.Next() {
		var t journal.TradeRecord
		if err := rows.Scan(&t.ID, &t.Timestamp, &t.Symbol, &t.EntryPrice, &t.ExitPrice, &t.EntrySize,
			&t.PnL, &t.PnLPct, &t.Fees, &t.ExitReason, &t.Mode); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Timestamp = t.Timestamp.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}
	return out, nil
}

// SaveState stores value under key, replacing any previous value.
func (p *Default) SaveState(ctx context.Context, key string, value []byte) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, p.d.upsertState, key, string(value), time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to save state %s: %w", key, err)
		}
		return nil
	})
}

// LoadState returns nil, nil when key was never saved.
func (p *Default) LoadState(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := p.queryRowWithTransaction(ctx, p.d.selectState, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state %s: %w", key, err)
	}
	return []byte(value), nil
}

func (p *Default) Close() error {
	return p.db.Close()
}
