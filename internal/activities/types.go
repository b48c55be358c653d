package activities

import (
	"docqa/internal/extract"
	"docqa/internal/models"
)

type ExtractSegmentsInput struct {
	FilePath string `json:"file_path"`
	FileType string `json:"file_type"`
}

type ExtractSegmentsOutput struct {
	Segments []extract.Segment `json:"segments"`
}

type ChunkSegmentsInput struct {
	DocumentID   string            `json:"document_id"`
	Segments     []extract.Segment `json:"segments"`
	ChunkSize    int               `json:"chunk_size"`
	ChunkOverlap int               `json:"chunk_overlap"`
}

type ChunkSegmentsOutput struct {
	Chunks []models.Chunk `json:"chunks"`
}

type EmbedChunksInput struct {
	Operation     string   `json:"operation"`
	DocumentID    string   `json:"document_id"`
	ProviderIndex int      `json:"provider_index"`
	Texts         []string `json:"texts"`
}

type EmbedChunksOutput struct {
	Vectors      [][]float32 `json:"vectors"`
	ProviderName string      `json:"provider_name"`
	Model        string      `json:"model"`
}

type UpsertChunksInput struct {
	Chunks  []models.Chunk `json:"chunks"`
	Vectors [][]float32    `json:"vectors"`
}

type UpdateDocumentStatusInput struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
	FailStage  string `json:"fail_stage"`
	FailReason string `json:"fail_reason"`
}

type MarkDocumentProcessedInput struct {
	DocumentID    string `json:"document_id"`
	ChunkCount    int    `json:"chunk_count"`
	EmbedProvider string `json:"embed_provider"`
}

type DeleteDocumentDataInput struct {
	DocumentID string `json:"document_id"`
}
