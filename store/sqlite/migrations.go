package sqlite

import "github.com/xraph/credits/store/sqlstore"

// Migrations is the ordered schema of the SQLite store.
var Migrations = []sqlstore.Migration{
	{
		Version: "20260301000001",
		Name:    "create_credit_accounts",
		Up: `
CREATE TABLE IF NOT EXISTS credit_accounts (
    id               TEXT PRIMARY KEY,
    organization_id  TEXT NOT NULL DEFAULT '',
    type             TEXT NOT NULL CHECK (type IN ('PLATFORM', 'ASSET', 'LEASE')),
    expires          INTEGER,
    renewable_amount INTEGER,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
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
    debit        INTEGER NOT NULL DEFAULT 0 CHECK (debit >= 0),
    credit       INTEGER NOT NULL DEFAULT 0 CHECK (credit >= 0),
    created      INTEGER NOT NULL,
    project_id   TEXT NOT NULL DEFAULT '',
    service_name TEXT NOT NULL DEFAULT '',
    requests     TEXT,
    operation    TEXT NOT NULL,
    line         INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (tx_id, account_id)
);

CREATE INDEX IF NOT EXISTS idx_credit_tx_account_created ON credit_transactions (account_id, created);
CREATE INDEX IF NOT EXISTS idx_credit_tx_group ON credit_transactions (group_id, line);
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
    renewal_day     INTEGER NOT NULL DEFAULT 0,
    credit_accounts TEXT NOT NULL DEFAULT '[]',
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
`,
	},
}
