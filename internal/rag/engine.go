package rag

import (
	"context"
	"log/slog"
	"time"

	"docqa/internal/models"
	"docqa/internal/providers"
	"docqa/internal/util"
	"docqa/internal/vector"

	"github.com/google/uuid"
)

// NoRelevantContextAnswer is returned without calling the LLM when no chunk
// clears the similarity threshold.
const NoRelevantContextAnswer = "No relevant content was found in the selected documents for this question. Try rephrasing the question or widening the document selection."

// genericFailureAnswer is the user-facing text for any provider failure;
// raw provider errors are logged, never returned.
const genericFailureAnswer = "The question could not be answered right now. Please try again later."

type Embedder interface {
	Embed(ctx context.Context, operation, text, preferred string) ([]float32, providers.ProviderInfo, error)
}

type Generator interface {
	Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error)
}

type Searcher interface {
	Search(ctx context.Context, queryVec []float32, topK int, filters vector.SearchFilters) ([]models.SearchHit, error)
}

// ProviderLookup resolves which embedding provider a set of documents was
// ingested with, so the query vector lands in the same space.
type ProviderLookup interface {
	EmbedProviders(ctx context.Context, documentIDs []string) ([]string, error)
}

type QueryLog interface {
	Insert(ctx context.Context, q models.QueryRecord) error
}

type Request struct {
	QueryText           string   `json:"query_text"`
	TopK                int      `json:"top_k"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	DocumentIDs         []string `json:"document_ids,omitempty"`
}

type Options struct {
	DefaultTopK      int
	DefaultThreshold float64
	QueryTimeout     time.Duration
	ExcerptRunes     int
}

// Engine orchestrates one query: embed, search, filter, synthesize, cite,
// record. Each call is isolated; a failing query never affects another.
type Engine struct {
	embedder  Embedder
	generator Generator
	searcher  Searcher
	docs      ProviderLookup
	queries   QueryLog
	opts      Options
	log       *slog.Logger
}

func NewEngine(e Embedder, g Generator, s Searcher, docs ProviderLookup, queries QueryLog, opts Options, log *slog.Logger) *Engine {
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 4
	}
	if opts.DefaultThreshold == 0 {
		opts.DefaultThreshold = 0.7
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 2 * time.Minute
	}
	if opts.ExcerptRunes <= 0 {
		opts.ExcerptRunes = 300
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{embedder: e, generator: g, searcher: s, docs: docs, queries: queries, opts: opts, log: log}
}

// Answer runs the full query pipeline and persists the outcome. The
// returned record is terminal: status is completed or error, never pending.
func (e *Engine) Answer(ctx context.Context, req Request) models.QueryRecord {
	start := time.Now()
	if req.TopK <= 0 {
		req.TopK = e.opts.DefaultTopK
	}
	if req.SimilarityThreshold == 0 {
		req.SimilarityThreshold = e.opts.DefaultThreshold
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.QueryTimeout)
	defer cancel()

	record := models.QueryRecord{
		QueryID:             uuid.NewString(),
		QueryText:           req.QueryText,
		DocumentIDs:         req.DocumentIDs,
		TopK:                req.TopK,
		SimilarityThreshold: req.SimilarityThreshold,
		Sources:             []models.Source{},
		CreatedAt:           start.UTC(),
	}

	queryVec, embedInfo, err := e.embedder.Embed(ctx, "query_embed", req.QueryText, e.preferredProvider(ctx, req.DocumentIDs))
	if err != nil {
		e.log.Error("query embedding failed", "query_id", record.QueryID, "err", err)
		return e.fail(ctx, record, models.CategoryEmbeddingUnavailable, start)
	}

	hits, err := e.searcher.Search(ctx, queryVec, req.TopK, vector.SearchFilters{DocumentIDs: req.DocumentIDs})
	if err != nil {
		e.log.Error("vector search failed", "query_id", record.QueryID, "err", err)
		return e.fail(ctx, record, models.CategoryVectorStore, start)
	}

	relevant := hits[:0:0]
	for _, h := range hits {
		if h.Score >= req.SimilarityThreshold {
			relevant = append(relevant, h)
		}
	}
	if len(relevant) == 0 {
		// A valid terminal state, not a failure; skipping the LLM here
		// avoids hallucinating over empty context.
		record.Status = models.QueryCompleted
		record.ErrorCategory = models.CategoryNoContext
		record.Answer = NoRelevantContextAnswer
		record.LatencyMs = time.Since(start).Milliseconds()
		e.persist(ctx, record)
		return record
	}

	resp, llmInfo, err := e.generator.Generate(ctx, providers.GenerateRequest{
		Operation: "rag_answer",
		Prompt:    buildPrompt(req.QueryText),
		Context:   buildContext(relevant),
	})
	if err != nil {
		e.log.Error("answer generation failed", "query_id", record.QueryID, "err", err)
		return e.fail(ctx, record, models.CategoryLLMUnavailable, start)
	}

	// Citation policy: one Source per chunk supplied to the LLM. Without
	// grounding markers from the model, reporting every supplied chunk is
	// honest about what the answer could have drawn on.
	record.Sources = sourcesFromHits(relevant, e.opts.ExcerptRunes)
	record.Status = models.QueryCompleted
	record.Answer = resp.Text
	record.LatencyMs = time.Since(start).Milliseconds()
	e.persist(ctx, record)
	e.log.Info("query answered",
		"query_id", record.QueryID,
		"embed_provider", embedInfo.Name,
		"llm_provider", llmInfo.Name,
		"sources", len(record.Sources),
		"latency_ms", record.LatencyMs)
	return record
}

// preferredProvider returns the provider to embed the query with when every
// scoped document was ingested by the same one. Mixed or unscoped queries
// fall back to the general cascade order.
func (e *Engine) preferredProvider(ctx context.Context, documentIDs []string) string {
	if len(documentIDs) == 0 || e.docs == nil {
		return ""
	}
	names, err := e.docs.EmbedProviders(ctx, documentIDs)
	if err != nil {
		e.log.Warn("embed provider lookup failed", "err", err)
		return ""
	}
	if len(names) == 1 {
		return names[0]
	}
	return ""
}

func (e *Engine) fail(ctx context.Context, record models.QueryRecord, category string, start time.Time) models.QueryRecord {
	record.Status = models.QueryError
	record.ErrorCategory = category
	record.Answer = genericFailureAnswer
	record.LatencyMs = time.Since(start).Milliseconds()
	e.persist(ctx, record)
	return record
}

func (e *Engine) persist(ctx context.Context, record models.QueryRecord) {
	if e.queries == nil {
		return
	}
	// Persist with a detached deadline so a query timeout does not also
	// lose the log entry.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := e.queries.Insert(logCtx, record); err != nil {
		e.log.Error("persist query record failed", "query_id", record.QueryID, "err", err)
	}
}

func sourcesFromHits(hits []models.SearchHit, excerptRunes int) []models.Source {
	out := make([]models.Source, 0, len(hits))
	for _, h := range hits {
		out = append(out, models.Source{
			DocumentID:    h.DocumentID,
			FileName:      h.FileName,
			Excerpt:       util.Excerpt(h.Text, excerptRunes),
			Score:         h.Score,
			SequenceIndex: h.SequenceIndex,
			PageNumber:    h.PageNumber,
		})
	}
	return out
}
