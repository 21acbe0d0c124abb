package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'resident' CHECK (role IN ('admin', 'resident')),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS items (
    id               INTEGER PRIMARY KEY,
    owner_id         INTEGER NOT NULL REFERENCES users(id),
    name             TEXT NOT NULL,
    description      TEXT,
    transaction_type TEXT NOT NULL CHECK (transaction_type IN ('sell', 'lend', 'donate')),
    price_cents      INTEGER NOT NULL DEFAULT 0 CHECK (price_cents >= 0),
    status           TEXT NOT NULL DEFAULT 'available' CHECK (status IN ('available', 'reserved', 'unavailable')),
    created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at       DATETIME
);

CREATE TABLE IF NOT EXISTS transactions (
    id                           INTEGER PRIMARY KEY,
    item_id                      INTEGER NOT NULL REFERENCES items(id),
    requester_id                 INTEGER NOT NULL REFERENCES users(id),
    owner_id                     INTEGER NOT NULL REFERENCES users(id),
    transaction_type             TEXT NOT NULL CHECK (transaction_type IN ('sell', 'lend', 'donate')),
    status                       TEXT NOT NULL DEFAULT 'pending' CHECK (status IN (
        'pending', 'awaiting_buyer', 'accepted', 'handed_over',
        'returned', 'completed', 'rejected', 'disputed')),
    pickup_at                    DATETIME,
    pickup_location              TEXT,
    seller_handover_confirmed_at DATETIME,
    buyer_handover_confirmed_at  DATETIME,
    buyer_return_confirmed_at    DATETIME,
    seller_return_confirmed_at   DATETIME,
    dispute_reason               TEXT,
    created_at                   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at                   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CHECK (requester_id != owner_id)
);

-- Backstop for the one-active-transaction-per-item invariant. The primary
-- guard is the conditional item reservation; this index catches anything
-- that slips past it.
CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_item_active
    ON transactions(item_id)
    WHERE status IN ('pending', 'awaiting_buyer', 'accepted', 'handed_over', 'returned');

CREATE TABLE IF NOT EXISTS audit_entries (
    id             INTEGER PRIMARY KEY,
    transaction_id INTEGER NOT NULL REFERENCES transactions(id),
    actor_id       INTEGER NOT NULL REFERENCES users(id),
    actor_role     TEXT NOT NULL CHECK (actor_role IN ('buyer', 'seller', 'system', 'admin')),
    action         TEXT NOT NULL,
    from_status    TEXT NOT NULL,
    to_status      TEXT NOT NULL,
    notes          TEXT,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_audit_entries_transaction
    ON audit_entries(transaction_id, created_at, id);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
