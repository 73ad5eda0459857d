package store

// Schema for the trade, market, and checkpoint tables. Trades are
// append-only and deduplicated on (tx_hash, log_index); the checkpoint is a
// single row keyed by id = 1.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS trades (
	tx_hash         TEXT NOT NULL,
	log_index       BIGINT NOT NULL,
	block_number    BIGINT NOT NULL,
	block_timestamp BIGINT NOT NULL DEFAULT 0,
	exchange        TEXT NOT NULL DEFAULT '',
	order_hash      TEXT NOT NULL DEFAULT '',
	maker           TEXT NOT NULL,
	taker           TEXT NOT NULL,
	maker_asset_id  TEXT NOT NULL,
	taker_asset_id  TEXT NOT NULL,
	maker_amount    TEXT NOT NULL,
	taker_amount    TEXT NOT NULL,
	fee             TEXT NOT NULL DEFAULT '0',
	token_id        TEXT NOT NULL,
	side            TEXT NOT NULL,
	price           NUMERIC(20, 8) NOT NULL,
	size            NUMERIC(40, 0) NOT NULL,
	market_slug     TEXT NOT NULL DEFAULT '',
	outcome         TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tx_hash, log_index)
);

CREATE INDEX IF NOT EXISTS idx_trades_block_number ON trades (block_number);
CREATE INDEX IF NOT EXISTS idx_trades_maker ON trades (maker);
CREATE INDEX IF NOT EXISTS idx_trades_taker ON trades (taker);
CREATE INDEX IF NOT EXISTS idx_trades_token_id ON trades (token_id);
CREATE INDEX IF NOT EXISTS idx_trades_market_slug ON trades (market_slug);

CREATE TABLE IF NOT EXISTS markets (
	slug               TEXT PRIMARY KEY,
	question           TEXT NOT NULL DEFAULT '',
	condition_id       TEXT NOT NULL DEFAULT '',
	yes_token_id       TEXT NOT NULL DEFAULT '',
	no_token_id        TEXT NOT NULL DEFAULT '',
	category           TEXT NOT NULL DEFAULT '',
	end_date           TEXT NOT NULL DEFAULT '',
	active             BOOLEAN NOT NULL DEFAULT true,
	closed             BOOLEAN NOT NULL DEFAULT false,
	resolved           BOOLEAN NOT NULL DEFAULT false,
	resolution_outcome TEXT NOT NULL DEFAULT '',
	volume_cached      NUMERIC(24, 6) NOT NULL DEFAULT 0,
	liquidity          NUMERIC(24, 6) NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_markets_yes_token ON markets (yes_token_id);
CREATE INDEX IF NOT EXISTS idx_markets_no_token ON markets (no_token_id);

CREATE TABLE IF NOT EXISTS checkpoint (
	id         SMALLINT PRIMARY KEY CHECK (id = 1),
	last_block BIGINT NOT NULL,
	block_hash TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
