package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS fetched_pages (
		id BIGSERIAL PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		final_url TEXT NOT NULL,
		http_status_code INTEGER NOT NULL,
		not_modified BOOLEAN NOT NULL DEFAULT FALSE,
		content_type TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		body BYTEA,
		attempts_made INTEGER NOT NULL,
		redirect_count INTEGER NOT NULL DEFAULT 0,
		response_time_ms INTEGER NOT NULL,
		fetch_timestamp TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS failed_urls (
		id BIGSERIAL PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		failure_kind TEXT NOT NULL,
		failure_reason TEXT NOT NULL,
		http_status_code INTEGER NOT NULL DEFAULT 0,
		attempts_made INTEGER NOT NULL DEFAULT 0,
		last_attempt_timestamp TIMESTAMPTZ NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 1,
		next_retry_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS failed_urls_next_retry_at_idx ON failed_urls (next_retry_at) WHERE next_retry_at IS NOT NULL`,
}

// EnsureSchema creates the tables used by the repositories when missing.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
