package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The messaging core owns only the chat_* tables. users, sections,
// section_teachers, students and student_parents belong to the management
// subsystem and are read, never migrated, here.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS chat_scopes (
		scope_key       TEXT PRIMARY KEY,
		last_seq        BIGINT NOT NULL DEFAULT 0,
		last_created_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch'
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id          TEXT PRIMARY KEY,
		scope_type  TEXT NOT NULL,
		scope_key   TEXT NOT NULL REFERENCES chat_scopes (scope_key),
		scope_id    TEXT,
		seq         BIGINT NOT NULL,
		sender_id   TEXT NOT NULL,
		receiver_id TEXT,
		content     TEXT NOT NULL,
		attachments TEXT[] NOT NULL DEFAULT '{}',
		client_id   TEXT,
		seen        BOOLEAN NOT NULL DEFAULT FALSE,
		seen_at     TIMESTAMPTZ,
		created_at  TIMESTAMPTZ NOT NULL,
		UNIQUE (scope_key, seq)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS chat_messages_client_id
		ON chat_messages (scope_key, sender_id, client_id) WHERE client_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS chat_messages_unseen
		ON chat_messages (scope_key, receiver_id) WHERE seen = FALSE`,
	`CREATE TABLE IF NOT EXISTS chat_read_marks (
		scope_key  TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		last_seq   BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (scope_key, user_id)
	)`,
}

// Migrate creates the chat tables if they do not exist yet
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
