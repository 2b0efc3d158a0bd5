package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	dataset TEXT NOT NULL,
	signals TEXT NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	initial_capital REAL NOT NULL,
	final_value REAL NOT NULL,
	total_return REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	rejected INTEGER NOT NULL,
	realized_pnl REAL NOT NULL,
	config BLOB
);

CREATE TABLE IF NOT EXISTS transactions (
	tx_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	quantity REAL NOT NULL,
	price REAL NOT NULL,
	commission REAL NOT NULL,
	slippage REAL NOT NULL,
	total_cost REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS closed_positions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	entry_date DATETIME NOT NULL,
	entry_price REAL NOT NULL,
	exit_date DATETIME NOT NULL,
	exit_price REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	exit_reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolio_states (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	cash REAL NOT NULL,
	total_value REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	total_return REAL NOT NULL,
	exposure REAL NOT NULL,
	position_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tx_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	tx_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL,
	replayed INTEGER NOT NULL,
	time DATETIME NOT NULL,
	before BLOB,
	after BLOB
);

CREATE INDEX IF NOT EXISTS idx_transactions_run ON transactions(run_id, time);
CREATE INDEX IF NOT EXISTS idx_states_run ON portfolio_states(run_id, time);
CREATE INDEX IF NOT EXISTS idx_tx_log_run ON tx_log(run_id);
`
