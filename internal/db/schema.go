package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            UUID PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    full_name     TEXT NOT NULL,
    phone         TEXT NOT NULL DEFAULT '',
    address       TEXT NOT NULL DEFAULT '',
    role          TEXT NOT NULL DEFAULT 'user',
    verified      BOOLEAN NOT NULL DEFAULT FALSE,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS refresh_token_sessions (
    id         UUID PRIMARY KEY,
    user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    token_hash TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    revoked_at TIMESTAMPTZ,
    user_agent TEXT,
    ip_address TEXT
);

CREATE TABLE IF NOT EXISTS pickup_requests (
    id             UUID PRIMARY KEY,
    user_id        UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    address        TEXT NOT NULL,
    pickup_date    DATE NOT NULL,
    pickup_time    TEXT NOT NULL,
    waste_type     TEXT NOT NULL,
    waste_quantity TEXT NOT NULL,
    intruksi       TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'scheduled',
    created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pickup_requests_user_created
    ON pickup_requests (user_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_refresh_sessions_expiry
    ON refresh_token_sessions (expires_at);
`

// Migrate applies the idempotent schema. Invoked by the migrate
// subcommand, not at serve time.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}
