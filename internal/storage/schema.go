package storage

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS documents (
		document_id      text PRIMARY KEY,
		file_name        text NOT NULL,
		file_type        text NOT NULL,
		file_size        bigint NOT NULL,
		file_path        text NOT NULL DEFAULT '',
		embedding_status text NOT NULL DEFAULT 'pending',
		chunk_count      int NOT NULL DEFAULT 0,
		embed_provider   text NOT NULL DEFAULT '',
		fail_stage       text NOT NULL DEFAULT '',
		fail_reason      text NOT NULL DEFAULT '',
		uploaded_at      timestamptz NOT NULL DEFAULT now(),
		updated_at       timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		chunk_id       text PRIMARY KEY,
		document_id    text NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
		sequence_index int NOT NULL,
		text           text NOT NULL,
		char_start     int NOT NULL DEFAULT 0,
		char_end       int NOT NULL DEFAULT 0,
		page_number    int,
		embedding      vector(1536)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, sequence_index)`,
	`CREATE TABLE IF NOT EXISTS queries (
		query_id             text PRIMARY KEY,
		query_text           text NOT NULL,
		document_ids         text[] NOT NULL DEFAULT '{}',
		top_k                int NOT NULL,
		similarity_threshold double precision NOT NULL,
		status               text NOT NULL,
		error_category       text NOT NULL DEFAULT '',
		answer               text NOT NULL DEFAULT '',
		sources              jsonb NOT NULL DEFAULT '[]',
		latency_ms           bigint NOT NULL DEFAULT 0,
		created_at           timestamptz NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queries_created ON queries(created_at)`,
}

// EnsureSchema creates tables on startup. Statements are idempotent so both
// the api and the worker can run it.
func (d *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
