package models

import "time"

// Document embedding_status lifecycle. Only the ingestion pipeline moves a
// document between states; the query path reads processed documents only.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusError      = "error"
)

// Query terminal states.
const (
	QueryCompleted = "completed"
	QueryError     = "error"
)

// Structured failure categories attached to failed (or empty-context) queries.
const (
	CategoryEmbeddingUnavailable = "embedding_unavailable"
	CategoryLLMUnavailable       = "llm_unavailable"
	CategoryNoContext            = "no_context"
	CategoryVectorStore          = "vector_store_error"
)

type Document struct {
	DocumentID      string    `json:"document_id"`
	FileName        string    `json:"file_name"`
	FileType        string    `json:"file_type"`
	FileSize        int64     `json:"file_size"`
	FilePath        string    `json:"-"`
	EmbeddingStatus string    `json:"embedding_status"`
	ChunkCount      int       `json:"chunk_count"`
	EmbedProvider   string    `json:"embed_provider,omitempty"`
	FailStage       string    `json:"fail_stage,omitempty"`
	FailReason      string    `json:"fail_reason,omitempty"`
	UploadedAt      time.Time `json:"upload_timestamp"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Chunk struct {
	ChunkID       string `json:"chunk_id"`
	DocumentID    string `json:"document_id"`
	SequenceIndex int    `json:"sequence_index"`
	Text          string `json:"text"`
	CharStart     int    `json:"char_start"`
	CharEnd       int    `json:"char_end"`
	PageNumber    *int   `json:"page_number,omitempty"`
}

// Source is the provenance record attached to an answer for one context
// chunk supplied to the LLM.
type Source struct {
	DocumentID    string  `json:"document_id"`
	FileName      string  `json:"file_name"`
	Excerpt       string  `json:"excerpt"`
	Score         float64 `json:"score"`
	SequenceIndex int     `json:"sequence_index"`
	PageNumber    *int    `json:"page_number,omitempty"`
}

type QueryRecord struct {
	QueryID             string    `json:"query_id"`
	QueryText           string    `json:"query_text"`
	DocumentIDs         []string  `json:"document_ids,omitempty"`
	TopK                int       `json:"top_k"`
	SimilarityThreshold float64   `json:"similarity_threshold"`
	Status              string    `json:"status"`
	ErrorCategory       string    `json:"error_category,omitempty"`
	Answer              string    `json:"answer"`
	Sources             []Source  `json:"sources"`
	LatencyMs           int64     `json:"latency_ms"`
	CreatedAt           time.Time `json:"timestamp"`
}

// SearchHit is a ranked vector-search result.
type SearchHit struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	FileName      string  `json:"file_name"`
	SequenceIndex int     `json:"sequence_index"`
	PageNumber    *int    `json:"page_number,omitempty"`
	Text          string  `json:"text"`
	Score         float64 `json:"score"`
}
