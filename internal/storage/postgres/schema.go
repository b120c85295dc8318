package postgres

import (
	"context"
	"database/sql"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS funnel_players (
		id TEXT PRIMARY KEY,
		identity_hash TEXT UNIQUE,
		name TEXT NOT NULL,
		assigned_code TEXT,
		version BIGINT NOT NULL,
		data JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS funnel_players_name_idx ON funnel_players (name)`,
	`CREATE INDEX IF NOT EXISTS funnel_players_code_idx ON funnel_players (assigned_code)`,
	`CREATE TABLE IF NOT EXISTS funnel_events (
		id TEXT PRIMARY KEY,
		identity TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		stage TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		seq BIGSERIAL,
		player_ref TEXT NOT NULL DEFAULT '',
		reward_code TEXT NOT NULL DEFAULT ''
	)`,
	`ALTER TABLE funnel_events ADD COLUMN IF NOT EXISTS seq BIGSERIAL`,
	`CREATE INDEX IF NOT EXISTS funnel_events_ts_idx ON funnel_events (ts DESC, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS funnel_events_stage_ts_idx ON funnel_events (stage, ts DESC, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS funnel_events_identity_idx ON funnel_events (identity)`,
	`CREATE TABLE IF NOT EXISTS funnel_sessions (
		token TEXT PRIMARY KEY,
		data JSONB NOT NULL,
		expires_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS funnel_customer_tags (
		customer_id TEXT PRIMARY KEY,
		tags TEXT[] NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// EnsureSchema creates the funnel tables if they do not exist
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
