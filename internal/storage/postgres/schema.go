package postgres

const schema = `
CREATE TABLE IF NOT EXISTS pairs (
	token_id        TEXT PRIMARY KEY,
	token_liquidity NUMERIC(78, 0) NOT NULL DEFAULT 0,
	base_liquidity  NUMERIC(78, 0) NOT NULL DEFAULT 0,
	initial_k       NUMERIC(156, 0) NOT NULL DEFAULT 0,
	token_earnings  NUMERIC(78, 0) NOT NULL DEFAULT 0,
	base_earnings   NUMERIC(78, 0) NOT NULL DEFAULT 0,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ledger_settings (
	name       TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transfers (
	id         BIGSERIAL PRIMARY KEY,
	recipient  TEXT NOT NULL,
	asset      TEXT NOT NULL,
	amount     NUMERIC(78, 0) NOT NULL,
	token_id   TEXT,
	reason     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

ALTER TABLE transfers ADD COLUMN IF NOT EXISTS transfer_id TEXT;
CREATE UNIQUE INDEX IF NOT EXISTS transfers_transfer_id_idx ON transfers (transfer_id);
CREATE INDEX IF NOT EXISTS transfers_token_id_idx ON transfers (token_id);
`
