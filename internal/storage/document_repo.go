package storage

import (
	"context"
	"errors"
	"fmt"

	"docqa/internal/models"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("not found")

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, d models.Document) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO documents (document_id, file_name, file_type, file_size, file_path, embedding_status)
VALUES ($1, $2, $3, $4, $5, $6)`,
		d.DocumentID, d.FileName, d.FileType, d.FileSize, d.FilePath, d.EmbeddingStatus)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", d.DocumentID, err)
	}
	return nil
}

func (r *DocumentRepo) Get(ctx context.Context, documentID string) (models.Document, error) {
	row := r.db.Pool.QueryRow(ctx, `
SELECT document_id, file_name, file_type, file_size, file_path, embedding_status,
       chunk_count, embed_provider, fail_stage, fail_reason, uploaded_at, updated_at
FROM documents WHERE document_id = $1`, documentID)
	var d models.Document
	err := row.Scan(&d.DocumentID, &d.FileName, &d.FileType, &d.FileSize, &d.FilePath,
		&d.EmbeddingStatus, &d.ChunkCount, &d.EmbedProvider, &d.FailStage, &d.FailReason,
		&d.UploadedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get document %s: %w", documentID, err)
	}
	return d, nil
}

func (r *DocumentRepo) List(ctx context.Context, limit, offset int) ([]models.Document, int, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT document_id, file_name, file_type, file_size, file_path, embedding_status,
       chunk_count, embed_provider, fail_stage, fail_reason, uploaded_at, updated_at
FROM documents ORDER BY uploaded_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	out := make([]models.Document, 0, limit)
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.DocumentID, &d.FileName, &d.FileType, &d.FileSize, &d.FilePath,
			&d.EmbeddingStatus, &d.ChunkCount, &d.EmbedProvider, &d.FailStage, &d.FailReason,
			&d.UploadedAt, &d.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate documents: %w", err)
	}
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM documents`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}
	return out, total, nil
}

// SetStatus transitions embedding_status and records the failing stage when
// the transition is to error.
func (r *DocumentRepo) SetStatus(ctx context.Context, documentID, status, failStage, failReason string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE documents
SET embedding_status = $2, fail_stage = $3, fail_reason = $4, updated_at = now()
WHERE document_id = $1`, documentID, status, failStage, failReason)
	if err != nil {
		return fmt.Errorf("set status of document %s: %w", documentID, err)
	}
	return nil
}

// MarkProcessed records the terminal success state together with the chunk
// count and the embedding provider the document's vectors were produced by.
func (r *DocumentRepo) MarkProcessed(ctx context.Context, documentID string, chunkCount int, embedProvider string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE documents
SET embedding_status = 'processed', chunk_count = $2, embed_provider = $3,
    fail_stage = '', fail_reason = '', updated_at = now()
WHERE document_id = $1`, documentID, chunkCount, embedProvider)
	if err != nil {
		return fmt.Errorf("mark document %s processed: %w", documentID, err)
	}
	return nil
}

func (r *DocumentRepo) Delete(ctx context.Context, documentID string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM documents WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	return nil
}

// EmbedProviders returns the distinct provider names used by the given
// documents. The query path uses this to re-request the same provider.
func (r *DocumentRepo) EmbedProviders(ctx context.Context, documentIDs []string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT DISTINCT embed_provider FROM documents
WHERE document_id = ANY($1) AND embed_provider <> ''`, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("list embed providers: %w", err)
	}
	defer rows.Close()
	out := make([]string, 0, 2)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan embed provider: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ResetAll wipes documents (chunks cascade) for the admin reset action.
func (r *DocumentRepo) ResetAll(ctx context.Context) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("reset documents: %w", err)
	}
	return nil
}
