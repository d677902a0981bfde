package repo

import (
	"context"
	"database/sql"
)

const schema = `
CREATE TABLE IF NOT EXISTS campaign_messages (
	id          TEXT PRIMARY KEY,
	template    TEXT NOT NULL,
	recipients  JSONB NOT NULL DEFAULT '[]',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	id              TEXT PRIMARY KEY,
	target_profile  TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'in_progress',
	items           JSONB NOT NULL DEFAULT '[]',
	item_count      INTEGER NOT NULL DEFAULT 0,
	last_error      TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS leads_target_profile_idx ON leads (target_profile);
`

// EnsureSchema creates the tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
