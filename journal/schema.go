package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	dataset TEXT NOT NULL,
	strategy TEXT NOT NULL,
	config BLOB,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	start_value REAL NOT NULL,
	end_value REAL NOT NULL,
	total_return REAL NOT NULL,
	annual_return REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	sharpe REAL NOT NULL,
	mar REAL NOT NULL,
	fills INTEGER NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	realized_pnl REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS fills (
	fill_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	order_id TEXT NOT NULL,
	trade_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	is_buy INTEGER NOT NULL,
	price REAL NOT NULL,
	size REAL NOT NULL,
	value REAL NOT NULL,
	pnl REAL NOT NULL,
	commission REAL NOT NULL,
	closed INTEGER NOT NULL,
	reason TEXT NOT NULL,
	diag_price REAL,
	diag_ema REAL,
	diag_atr REAL,
	diag_exposure REAL,
	diag_target REAL,
	diag_current REAL
);

CREATE INDEX IF NOT EXISTS idx_fills_run ON fills(run_id, time);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	cash REAL NOT NULL,
	position REAL NOT NULL,
	value REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_run ON equity(run_id, time);
`
