package postgres

import "github.com/xraph/credits/store/sqlstore"

// Migrations is the ordered schema of the PostgreSQL store.
var Migrations = []sqlstore.Migration{
	{
		Version: "20260301000001",
		Name:    "create_credit_accounts",
		Up: `
CREATE TABLE IF NOT EXISTS credit_accounts (
    id               TEXT PRIMARY KEY,
    organization_id  TEXT NOT NULL DEFAULT '',
    type             TEXT NOT NULL,
    expires          TIMESTAMPTZ,
    renewable_amount BIGINT,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (type IN ('PLATFORM', 'ASSET', 'LEASE'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_accounts_platform ON credit_accounts (type) WHERE type = 'PLATFORM';
CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_accounts_lease ON credit_accounts (organization_id) WHERE type = 'LEASE';
CREATE INDEX IF NOT EXISTS idx_credit_accounts_org ON credit_accounts (organization_id, type);
`,
	},
	{
		Version: "20260301000002",
		Name:    "create_credit_transactions",
		Up: `
CREATE TABLE IF NOT EXISTS credit_transactions (
    tx_id        TEXT NOT NULL,
    group_id     TEXT,
    account_id   TEXT NOT NULL REFERENCES credit_accounts (id),
    debit        BIGINT NOT NULL DEFAULT 0,
    credit       BIGINT NOT NULL DEFAULT 0,
    created      TIMESTAMPTZ NOT NULL,
    project_id   TEXT NOT NULL DEFAULT '',
    service_name TEXT NOT NULL DEFAULT '',
    requests     JSONB,
    operation    TEXT NOT NULL,
    line         INT NOT NULL DEFAULT 0,
    PRIMARY KEY (tx_id, account_id),
    CHECK (debit >= 0 AND credit >= 0)
);

CREATE INDEX IF NOT EXISTS idx_credit_tx_account_created ON credit_transactions (account_id, created);
CREATE INDEX IF NOT EXISTS idx_credit_tx_group ON credit_transactions (group_id, line) WHERE group_id IS NOT NULL;
`,
	},
	{
		Version: "20260301000003",
		Name:    "create_credit_subscriptions",
		Up: `
CREATE TABLE IF NOT EXISTS credit_subscriptions (
    id              TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL UNIQUE,
    status          TEXT NOT NULL DEFAULT 'active',
    renewal_day     INT NOT NULL DEFAULT 0,
    credit_accounts JSONB NOT NULL DEFAULT '[]',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	},
}
