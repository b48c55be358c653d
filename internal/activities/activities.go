package activities

import (
	"context"
	"fmt"
	"os"

	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/extract"
	"docqa/internal/providers"
	"docqa/internal/storage"
	"docqa/internal/vector"
)

type Activities struct {
	cfg       config.Config
	docRepo   *storage.DocumentRepo
	store     *vector.Store
	providers *providers.Manager
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	return &Activities{
		cfg:       cfg,
		docRepo:   storage.NewDocumentRepo(db),
		store:     vector.NewStore(db.Pool),
		providers: pm,
	}, nil
}

func (a *Activities) ExtractSegmentsActivity(ctx context.Context, in ExtractSegmentsInput) (ExtractSegmentsOutput, error) {
	_ = ctx
	data, err := os.ReadFile(in.FilePath)
	if err != nil {
		return ExtractSegmentsOutput{}, fmt.Errorf("read uploaded file: %w", err)
	}
	segments, err := extract.Extract(data, in.FileType)
	if err != nil {
		return ExtractSegmentsOutput{}, err
	}
	return ExtractSegmentsOutput{Segments: segments}, nil
}

func (a *Activities) ChunkSegmentsActivity(ctx context.Context, in ChunkSegmentsInput) (ChunkSegmentsOutput, error) {
	_ = ctx
	size := in.ChunkSize
	if size <= 0 {
		size = a.cfg.ChunkSize
	}
	overlap := in.ChunkOverlap
	if overlap < 0 || overlap >= size {
		overlap = a.cfg.ChunkOverlap
	}
	return ChunkSegmentsOutput{Chunks: chunker.Chunk(in.DocumentID, in.Segments, size, overlap)}, nil
}

func (a *Activities) EmbedChunksActivity(ctx context.Context, in EmbedChunksInput) (EmbedChunksOutput, error) {
	provider, ref := a.providers.EmbedProviderByIndex(in.ProviderIndex)
	vectors, info, err := provider.Embed(ctx, providers.EmbedRequest{
		Operation: in.Operation,
		Inputs:    in.Texts,
	})
	if err != nil {
		return EmbedChunksOutput{}, fmt.Errorf("embed via %s: %w", ref.Raw, err)
	}
	if len(vectors) != len(in.Texts) {
		return EmbedChunksOutput{}, fmt.Errorf("embed via %s: got %d vectors for %d inputs", ref.Raw, len(vectors), len(in.Texts))
	}
	for _, v := range vectors {
		if len(v) != a.cfg.EmbedDim {
			return EmbedChunksOutput{}, fmt.Errorf("embed via %s: dimension %d, expected %d", ref.Raw, len(v), a.cfg.EmbedDim)
		}
	}
	if info.Name == "" {
		info.Name = ref.Name
	}
	return EmbedChunksOutput{Vectors: vectors, ProviderName: info.Name, Model: info.Model}, nil
}

func (a *Activities) UpsertChunksActivity(ctx context.Context, in UpsertChunksInput) error {
	if len(in.Vectors) != len(in.Chunks) {
		return fmt.Errorf("chunk and vector counts differ: %d vs %d", len(in.Chunks), len(in.Vectors))
	}
	records := make([]vector.ChunkRecord, 0, len(in.Chunks))
	for i, c := range in.Chunks {
		records = append(records, vector.ChunkRecord{Chunk: c, Vector: in.Vectors[i]})
	}
	return a.store.UpsertChunks(ctx, records)
}

func (a *Activities) UpdateDocumentStatusActivity(ctx context.Context, in UpdateDocumentStatusInput) error {
	return a.docRepo.SetStatus(ctx, in.DocumentID, in.Status, in.FailStage, in.FailReason)
}

func (a *Activities) MarkDocumentProcessedActivity(ctx context.Context, in MarkDocumentProcessedInput) error {
	return a.docRepo.MarkProcessed(ctx, in.DocumentID, in.ChunkCount, in.EmbedProvider)
}

// DeleteDocumentDataActivity removes a document's chunks, used when a
// re-ingestion must not leave vectors from a previous failed run behind.
func (a *Activities) DeleteDocumentDataActivity(ctx context.Context, in DeleteDocumentDataInput) error {
	return a.store.DeleteByDocument(ctx, in.DocumentID)
}
