package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docqa/internal/models"

	"github.com/jackc/pgx/v5"
)

type QueryRepo struct {
	db *DB
}

func NewQueryRepo(db *DB) *QueryRepo {
	return &QueryRepo{db: db}
}

func (r *QueryRepo) Insert(ctx context.Context, q models.QueryRecord) error {
	sources, err := json.Marshal(q.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO queries (query_id, query_text, document_ids, top_k, similarity_threshold,
                     status, error_category, answer, sources, latency_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		q.QueryID, q.QueryText, q.DocumentIDs, q.TopK, q.SimilarityThreshold,
		q.Status, q.ErrorCategory, q.Answer, sources, q.LatencyMs, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert query %s: %w", q.QueryID, err)
	}
	return nil
}

func (r *QueryRepo) Get(ctx context.Context, queryID string) (models.QueryRecord, error) {
	row := r.db.Pool.QueryRow(ctx, `
SELECT query_id, query_text, document_ids, top_k, similarity_threshold,
       status, error_category, answer, sources, latency_ms, created_at
FROM queries WHERE query_id = $1`, queryID)
	q, err := scanQuery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.QueryRecord{}, fmt.Errorf("query %s: %w", queryID, ErrNotFound)
	}
	if err != nil {
		return models.QueryRecord{}, fmt.Errorf("get query %s: %w", queryID, err)
	}
	return q, nil
}

func (r *QueryRepo) List(ctx context.Context, limit, offset int) ([]models.QueryRecord, int, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT query_id, query_text, document_ids, top_k, similarity_threshold,
       status, error_category, answer, sources, latency_ms, created_at
FROM queries ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()
	out := make([]models.QueryRecord, 0, limit)
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan query: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate queries: %w", err)
	}
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM queries`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count queries: %w", err)
	}
	return out, total, nil
}

// ListSince returns the query log back to the given instant; the metrics
// aggregator recomputes everything from this window.
func (r *QueryRepo) ListSince(ctx context.Context, since time.Time) ([]models.QueryRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT query_id, query_text, document_ids, top_k, similarity_threshold,
       status, error_category, answer, sources, latency_ms, created_at
FROM queries WHERE created_at >= $1 ORDER BY created_at ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("list queries since %s: %w", since, err)
	}
	defer rows.Close()
	out := make([]models.QueryRecord, 0, 128)
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan query: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *QueryRepo) ResetAll(ctx context.Context) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM queries`); err != nil {
		return fmt.Errorf("reset queries: %w", err)
	}
	return nil
}

func scanQuery(row pgx.Row) (models.QueryRecord, error) {
	var q models.QueryRecord
	var sources []byte
	err := row.Scan(&q.QueryID, &q.QueryText, &q.DocumentIDs, &q.TopK, &q.SimilarityThreshold,
		&q.Status, &q.ErrorCategory, &q.Answer, &sources, &q.LatencyMs, &q.CreatedAt)
	if err != nil {
		return models.QueryRecord{}, err
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &q.Sources); err != nil {
			return models.QueryRecord{}, fmt.Errorf("unmarshal sources: %w", err)
		}
	}
	return q, nil
}
