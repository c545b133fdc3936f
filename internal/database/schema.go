package database

// schemas maps a database's friendly Name (see Config.Name) to the DDL
// applied by Migrate. Each entry is idempotent (CREATE TABLE IF NOT EXISTS)
// so Migrate can run on every process start.
var schemas = map[string]string{
	"ledger": `
CREATE TABLE IF NOT EXISTS trade_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker TEXT NOT NULL,
	market TEXT NOT NULL,
	action TEXT NOT NULL,
	quantity REAL NOT NULL,
	price REAL NOT NULL,
	total_amount REAL NOT NULL,
	timestamp TEXT NOT NULL,
	order_no TEXT,
	success INTEGER NOT NULL,
	message TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_logs_ticker_timestamp ON trade_logs (ticker, timestamp);

CREATE TABLE IF NOT EXISTS trading_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker TEXT NOT NULL,
	market TEXT NOT NULL,
	buy_price REAL NOT NULL,
	sell_price REAL NOT NULL,
	profit_rate REAL NOT NULL,
	holding_days INTEGER NOT NULL,
	sector TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trading_history_ticker ON trading_history (ticker);
`,

	"positions": `
CREATE TABLE IF NOT EXISTS stock_holdings (
	ticker TEXT NOT NULL,
	market TEXT NOT NULL,
	buy_price REAL NOT NULL,
	buy_date TEXT NOT NULL,
	current_price REAL NOT NULL,
	last_updated TEXT NOT NULL,
	target_price REAL,
	stop_loss REAL,
	trigger_type TEXT,
	sector TEXT,
	scenario BLOB,
	PRIMARY KEY (market, ticker)
);
CREATE INDEX IF NOT EXISTS idx_stock_holdings_market ON stock_holdings (market);
CREATE INDEX IF NOT EXISTS idx_stock_holdings_sector ON stock_holdings (sector);
`,

	"scheduler": `
CREATE TABLE IF NOT EXISTS scheduled_orders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker TEXT NOT NULL,
	company_name TEXT,
	market TEXT NOT NULL,
	signal_type TEXT NOT NULL,
	price REAL,
	execute_after TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TEXT NOT NULL,
	executed_at TEXT,
	error_message TEXT,
	signal_payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scheduled_orders_status_execute_after ON scheduled_orders (status, execute_after);
`,
}
