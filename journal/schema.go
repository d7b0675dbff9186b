package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	env TEXT NOT NULL,
	dataset TEXT NOT NULL,
	agent TEXT NOT NULL,
	seed INTEGER NOT NULL,
	config TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS episodes (
	run_id TEXT NOT NULL,
	env TEXT NOT NULL,
	dataset TEXT NOT NULL,
	episode INTEGER NOT NULL,
	steps INTEGER NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	initial_value REAL NOT NULL,
	final_value REAL NOT NULL,
	market_return REAL NOT NULL,
	portfolio_return REAL NOT NULL,
	done BOOLEAN NOT NULL,
	truncated BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS episode_metrics (
	run_id TEXT NOT NULL,
	env TEXT NOT NULL,
	episode INTEGER NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL,
	env TEXT NOT NULL,
	episode INTEGER NOT NULL,
	step INTEGER NOT NULL,
	time DATETIME NOT NULL,
	from_position REAL NOT NULL,
	to_position REAL NOT NULL,
	units REAL NOT NULL,
	price REAL NOT NULL,
	fee REAL NOT NULL,
	settled_interest REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_episodes_run ON episodes(run_id, env, episode);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, env, episode);
CREATE INDEX IF NOT EXISTS idx_metrics_run ON episode_metrics(run_id, env, episode);
`
