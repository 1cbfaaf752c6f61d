package repository

import (
	"context"
	"fmt"
)

// schema is applied at startup. There is no versioned migration story;
// statements are idempotent and the layout is documented here.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		balance BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS movements (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		member_id TEXT NOT NULL,
		amount BIGINT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'USD',
		status TEXT NOT NULL,
		kind TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (kind, order_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_movements_kind_status_created
		ON movements (kind, status, created_at)`,
	`CREATE TABLE IF NOT EXISTS ledger (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount BIGINT NOT NULL,
		status TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_member_created
		ON ledger (member_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS admins (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		is_super BOOLEAN NOT NULL DEFAULT FALSE,
		two_fa_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		idempotency_key TEXT PRIMARY KEY,
		request_hash TEXT NOT NULL,
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		response_status INT NOT NULL DEFAULT 0,
		response_body BYTEA,
		content_type TEXT NOT NULL DEFAULT '',
		in_progress BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the schema if it does not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
