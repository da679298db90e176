package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	account_id  TEXT PRIMARY KEY,
	blob        BYTEA NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS campaigns (
	id            UUID PRIMARY KEY,
	account_id    TEXT NOT NULL,
	targets       TEXT[] NOT NULL,
	templates     TEXT[] NOT NULL,
	count         INTEGER NOT NULL,
	min_delay_ms  BIGINT NOT NULL,
	max_delay_ms  BIGINT NOT NULL,
	status        TEXT NOT NULL,
	sent          INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	error_kind    TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS campaigns_created_at_idx ON campaigns (created_at DESC);

CREATE TABLE IF NOT EXISTS log_entries (
	id           UUID PRIMARY KEY,
	ts           TIMESTAMPTZ NOT NULL,
	category     TEXT NOT NULL,
	description  TEXT NOT NULL,
	detail       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS log_entries_ts_idx ON log_entries (ts DESC);
`

// EnsureSchema creates the tables if they do not exist. It is safe to run on
// every start.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres.EnsureSchema: %w", err)
	}
	return nil
}
