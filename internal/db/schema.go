package db

const postgresSchema = `
CREATE TABLE IF NOT EXISTS trades (
	id              TEXT PRIMARY KEY,
	closed_at       TIMESTAMPTZ NOT NULL,
	symbol          TEXT NOT NULL,
	entry_price     NUMERIC NOT NULL,
	exit_price      NUMERIC NOT NULL,
	entry_size_usdt NUMERIC NOT NULL,
	pnl_usdt        NUMERIC NOT NULL,
	pnl_pct         NUMERIC NOT NULL,
	fees_usdt       NUMERIC NOT NULL,
	exit_reason     TEXT NOT NULL,
	mode            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_symbol_closed_at_idx ON trades (symbol, closed_at);
CREATE TABLE IF NOT EXISTS bot_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS trades (
	id              TEXT PRIMARY KEY,
	closed_at       DATETIME NOT NULL,
	symbol          TEXT NOT NULL,
	entry_price     TEXT NOT NULL,
	exit_price      TEXT NOT NULL,
	entry_size_usdt TEXT NOT NULL,
	pnl_usdt        TEXT NOT NULL,
	pnl_pct         TEXT NOT NULL,
	fees_usdt       TEXT NOT NULL,
	exit_reason     TEXT NOT NULL,
	mode            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_symbol_closed_at_idx ON trades (symbol, closed_at);
CREATE TABLE IF NOT EXISTS bot_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL
)`

type dialect struct {
	schema      string
	insertTrade string
	upsertState string
	selectState string
	selectTrade string
}

var postgresDialect = dialect{
	schema: postgresSchema,
	insertTrade: `
		INSERT INTO trades (id, closed_at, symbol, entry_price, exit_price, entry_size_usdt,
			pnl_usdt, pnl_pct, fees_usdt, exit_reason, mode)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO NOTHING`,
	upsertState: `
		INSERT INTO bot_state (key, value, updated_at) VALUES ($1,$2,$3)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at`,
	selectState: `SELECT value FROM bot_state WHERE key=$1`,
	selectTrade: `
		SELECT id, closed_at, symbol, entry_price, exit_price, entry_size_usdt,
			pnl_usdt, pnl_pct, fees_usdt, exit_reason, mode
		FROM trades WHERE symbol=$1 ORDER BY closed_at ASC`,
}

var sqliteDialect = dialect{
	schema: sqliteSchema,
	insertTrade: `
		INSERT INTO trades (id, closed_at, symbol, entry_price, exit_price, entry_size_usdt,
			pnl_usdt, pnl_pct, fees_usdt, exit_reason, mode)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO NOTHING`,
	upsertState: `
		INSERT INTO bot_state (key, value, updated_at) VALUES (?,?,?)
		ON CONFLICT (key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
	selectState: `SELECT value FROM bot_state WHERE key=?`,
	selectTrade: `
		SELECT id, closed_at, symbol, entry_price, exit_price, entry_size_usdt,
			pnl_usdt, pnl_pct, fees_usdt, exit_reason, mode
		FROM trades WHERE symbol=? ORDER BY closed_at ASC`,
}
