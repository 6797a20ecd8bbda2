package repository

// Keep in sync with cmd/migrate/migrations. RunMigrations applies this for
// local runs and tests that do not go through the migrate command.
const createTokensTable = `
CREATE TABLE IF NOT EXISTS tokens (
    id                 BIGSERIAL   PRIMARY KEY,
    symbol             TEXT        NOT NULL,
    source             TEXT        NOT NULL,
    name               TEXT        NOT NULL,
    price              NUMERIC     NOT NULL,
    market_cap         NUMERIC     NOT NULL DEFAULT 0,
    volume_24h         NUMERIC     NOT NULL DEFAULT 0,
    percent_change_24h NUMERIC     NOT NULL DEFAULT 0,
    rank               INTEGER     NOT NULL DEFAULT 0,
    launch_date        TIMESTAMPTZ NOT NULL,
    risk_level         INTEGER     NOT NULL DEFAULT 50 CHECK (risk_level BETWEEN 0 AND 100),
    contract           TEXT,
    chain              TEXT,
    signals            JSONB       NOT NULL DEFAULT '[]'::jsonb,
    last_signal_at     TIMESTAMPTZ,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (symbol, source)
);

CREATE INDEX IF NOT EXISTS idx_tokens_source_market_cap
    ON tokens (source, market_cap DESC, symbol);

CREATE INDEX IF NOT EXISTS idx_tokens_source_launch_date
    ON tokens (source, launch_date);

CREATE INDEX IF NOT EXISTS idx_tokens_last_signal_at
    ON tokens (last_signal_at DESC) WHERE last_signal_at IS NOT NULL;
`

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
    wallet_address      TEXT        PRIMARY KEY,
    subscription_status TEXT        NOT NULL DEFAULT 'Free',
    subscription_expiry TIMESTAMPTZ,
    subscription_id     TEXT,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
