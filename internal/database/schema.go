package database

import (
	"context"
	"fmt"
)

// Timestamps are unix milliseconds and structured sheet parts are JSON text,
// so the same DDL serves postgres and sqlite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS external_credentials (
		user_id TEXT PRIMARY KEY,
		external_username TEXT NOT NULL,
		external_password_enc TEXT NOT NULL,
		external_session_token TEXT NOT NULL DEFAULT '',
		external_connected_at BIGINT,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS characters (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		is_external BOOLEAN NOT NULL DEFAULT FALSE,
		external_id TEXT,
		external_session_token TEXT,
		last_synced_at BIGINT,
		raw_data TEXT,
		level INTEGER NOT NULL DEFAULT 1,
		abilities TEXT NOT NULL,
		combat TEXT NOT NULL,
		saves TEXT NOT NULL,
		skills TEXT NOT NULL,
		feats TEXT NOT NULL,
		special_abilities TEXT NOT NULL,
		weapons TEXT NOT NULL,
		armor TEXT,
		spells TEXT NOT NULL,
		info TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS characters_external_id_idx ON characters (external_id)`,
	`CREATE INDEX IF NOT EXISTS characters_user_id_idx ON characters (user_id)`,
}

// EnsureSchema creates the tables the service uses when they are missing.
func (r *SQLRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
