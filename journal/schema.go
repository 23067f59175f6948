package journal

// Schema is applied on every open. Times are stored in UTC.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	close_time DATETIME NOT NULL,
	session TEXT NOT NULL,
	module TEXT NOT NULL,
	r REAL NOT NULL,
	mfe REAL NOT NULL,
	mae REAL NOT NULL,
	pnl REAL NOT NULL,
	risk REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_close ON trades(close_time);

CREATE TABLE IF NOT EXISTS transitions (
	id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	reason TEXT NOT NULL,
	module TEXT NOT NULL,
	signal TEXT NOT NULL,
	session TEXT NOT NULL,
	entry REAL NOT NULL,
	stop REAL NOT NULL,
	target REAL NOT NULL,
	size INTEGER NOT NULL,
	pnl REAL NOT NULL,
	adaptive INTEGER NOT NULL,
	score REAL NOT NULL,
	detail TEXT NOT NULL,
	state TEXT NOT NULL,
	lock_reason TEXT NOT NULL,
	hwm REAL NOT NULL,
	max_balance REAL NOT NULL,
	equity REAL NOT NULL,
	daily_realized REAL NOT NULL,
	trades_today INTEGER NOT NULL,
	consec_losses INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_time ON transitions(time);

CREATE TABLE IF NOT EXISTS risk_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	hwm REAL NOT NULL,
	max_balance REAL NOT NULL,
	breached INTEGER NOT NULL,
	breach_reason TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS unlock (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	requested_at DATETIME NOT NULL
);
`
