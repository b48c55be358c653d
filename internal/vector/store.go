package vector

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"docqa/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type SearchFilters struct {
	// DocumentIDs, when non-empty, restricts results to these documents.
	DocumentIDs []string
}

// Store persists chunk vectors in Postgres/pgvector and runs cosine
// similarity search over them.
type Store struct {
	q Querier
}

func NewStore(q Querier) *Store {
	return &Store{q: q}
}

type ChunkRecord struct {
	Chunk  models.Chunk
	Vector []float32
}

// UpsertChunks writes chunk rows with their vectors. Each chunk is upserted
// independently (chunk-atomic, not document-atomic): a partially ingested
// document may have some chunks visible, which the search path tolerates by
// only surfacing processed documents.
func (s *Store) UpsertChunks(ctx context.Context, records []ChunkRecord) error {
	for _, r := range records {
		var lit *string
		if len(r.Vector) > 0 {
			v := ToLiteral(r.Vector)
			lit = &v
		}
		_, err := s.q.Exec(ctx, `
INSERT INTO chunks (chunk_id, document_id, sequence_index, text, char_start, char_end, page_number, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, CASE WHEN $8::text IS NULL THEN NULL ELSE $8::vector END)
ON CONFLICT (chunk_id)
DO UPDATE SET
  text = EXCLUDED.text,
  char_start = EXCLUDED.char_start,
  char_end = EXCLUDED.char_end,
  page_number = EXCLUDED.page_number,
  embedding = COALESCE(EXCLUDED.embedding, chunks.embedding)`,
			r.Chunk.ChunkID, r.Chunk.DocumentID, r.Chunk.SequenceIndex, r.Chunk.Text,
			r.Chunk.CharStart, r.Chunk.CharEnd, r.Chunk.PageNumber, lit,
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", r.Chunk.ChunkID, err)
		}
	}
	return nil
}

// DeleteByDocument removes every chunk row (and therefore every vector) of a
// document. Callers retry on failure; a document must never keep orphan
// vectors after its metadata row is gone.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete chunks for document %s: %w", documentID, err)
	}
	return nil
}

// Search returns the topK nearest chunks by cosine similarity, scores in
// [-1,1] with higher better. Ties break by ascending sequence index. Only
// chunks of processed documents are visible.
func (s *Store) Search(ctx context.Context, queryVec []float32, topK int, filters SearchFilters) ([]models.SearchHit, error) {
	if topK <= 0 {
		topK = 4
	}
	args := []any{ToLiteral(queryVec), topK}
	filterSQL := ""
	if len(filters.DocumentIDs) > 0 {
		filterSQL = " AND c.document_id = ANY($3)"
		args = append(args, filters.DocumentIDs)
	}

	query := `
SELECT c.chunk_id, c.document_id, d.file_name, c.sequence_index, c.page_number, c.text,
       1 - (c.embedding <=> $1::vector) AS score
FROM chunks c
JOIN documents d ON d.document_id = c.document_id
WHERE d.embedding_status = 'processed'
  AND c.embedding IS NOT NULL` + filterSQL + `
ORDER BY c.embedding <=> $1::vector ASC, c.sequence_index ASC
LIMIT $2`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	hits := make([]models.SearchHit, 0, topK)
	for rows.Next() {
		var h models.SearchHit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.FileName, &h.SequenceIndex, &h.PageNumber, &h.Text, &h.Score); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return hits, nil
}

// ToLiteral renders a vector as a pgvector text literal.
func ToLiteral(v []float32) string {
	parts := make([]string, 0, len(v))
	for _, x := range v {
		parts = append(parts, strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
