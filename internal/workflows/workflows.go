package workflows

import (
	"fmt"
	"strings"
	"time"

	"docqa/internal/activities"
	"docqa/internal/models"
	"docqa/internal/providers"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetIngestStatus = "GetIngestStatus"

type providerState struct {
	disabledUntil map[int]time.Time
	retries       map[string]int
}

func newProviderState() providerState {
	return providerState{disabledUntil: map[int]time.Time{}, retries: map[string]int{}}
}

// DocumentIngestWorkflow runs one uploaded file through extraction,
// chunking, embedding and storage. Unrecoverable step failures mark the
// document as errored with the failing stage rather than failing the
// workflow, so the upload record always reaches a terminal state.
func DocumentIngestWorkflow(ctx workflow.Context, input DocumentIngestInput) (string, error) {
	status := IngestStatus{
		DocumentID:  input.DocumentID,
		CurrentStep: "init",
		Status:      models.StatusProcessing,
		RetryCounts: map[string]int{},
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetIngestStatus, func() (IngestStatus, error) {
		return status, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    2,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	cooldown := durationOrDefault(input.CooldownSeconds, 900)
	providerCount := input.EmbedProviders
	if providerCount <= 0 {
		providerCount = 1
	}
	state := newProviderState()

	if err := workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
		DocumentID: input.DocumentID,
		Status:     models.StatusProcessing,
	}).Get(ctx, nil); err != nil {
		return "", err
	}

	if input.Reingest {
		status.CurrentStep = "clear_previous"
		status.Steps[status.CurrentStep] = "processing"
		if err := workflow.ExecuteActivity(ctx, "DeleteDocumentDataActivity", activities.DeleteDocumentDataInput{DocumentID: input.DocumentID}).Get(ctx, nil); err != nil {
			return "", err
		}
		status.Steps[status.CurrentStep] = "done"
	}

	status.CurrentStep = "extract"
	status.Steps[status.CurrentStep] = "processing"
	var extractOut activities.ExtractSegmentsOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractSegmentsActivity", activities.ExtractSegmentsInput{
		FilePath: input.FilePath,
		FileType: input.FileType,
	}).Get(ctx, &extractOut); err != nil {
		if isExtractionError(err) {
			return markFailed(ctx, &status, input.DocumentID, "extract", "no extractable text in file")
		}
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "chunk"
	status.Steps[status.CurrentStep] = "processing"
	var chunkOut activities.ChunkSegmentsOutput
	if err := workflow.ExecuteActivity(ctx, "ChunkSegmentsActivity", activities.ChunkSegmentsInput{
		DocumentID:   input.DocumentID,
		Segments:     extractOut.Segments,
		ChunkSize:    input.ChunkSize,
		ChunkOverlap: input.ChunkOverlap,
	}).Get(ctx, &chunkOut); err != nil {
		return "", err
	}
	status.ChunkCount = len(chunkOut.Chunks)
	status.Steps[status.CurrentStep] = "done"

	// A readable but effectively empty file is a valid document with zero
	// chunks; it is searchable-never but not an error.
	if len(chunkOut.Chunks) == 0 {
		return markProcessed(ctx, &status, input.DocumentID, 0, "")
	}

	status.CurrentStep = "embed"
	status.Steps[status.CurrentStep] = "processing"
	texts := make([]string, 0, len(chunkOut.Chunks))
	for _, c := range chunkOut.Chunks {
		texts = append(texts, c.Text)
	}
	embedOut, err := callEmbedWithFailover(ctx, &state, providerCount, cooldown, activities.EmbedChunksInput{
		Operation:  "document_embed",
		DocumentID: input.DocumentID,
		Texts:      texts,
	}, status.RetryCounts, input.PreferredEmbedProviderIndex)
	if err != nil {
		return markFailed(ctx, &status, input.DocumentID, "embed", classifyReason(err))
	}
	status.Provider = embedOut.ProviderName
	status.Steps[status.CurrentStep] = "done"

	status.CurrentStep = "store"
	status.Steps[status.CurrentStep] = "processing"
	if err := workflow.ExecuteActivity(ctx, "UpsertChunksActivity", activities.UpsertChunksInput{
		Chunks:  chunkOut.Chunks,
		Vectors: embedOut.Vectors,
	}).Get(ctx, nil); err != nil {
		if isInvalidTextEncodingError(err) {
			return markFailed(ctx, &status, input.DocumentID, "store", "file contains invalid text encoding after extraction")
		}
		return "", err
	}
	status.Steps[status.CurrentStep] = "done"

	return markProcessed(ctx, &status, input.DocumentID, len(chunkOut.Chunks), embedOut.ProviderName)
}

func markFailed(ctx workflow.Context, status *IngestStatus, documentID, stage, reason string) (string, error) {
	status.Status = models.StatusError
	status.FailStage = stage
	status.FailReason = reason
	status.Steps[status.CurrentStep] = "failed"
	if err := workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
		DocumentID: documentID,
		Status:     models.StatusError,
		FailStage:  stage,
		FailReason: reason,
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	return status.Status, nil
}

func markProcessed(ctx workflow.Context, status *IngestStatus, documentID string, chunkCount int, provider string) (string, error) {
	if err := workflow.ExecuteActivity(ctx, "MarkDocumentProcessedActivity", activities.MarkDocumentProcessedInput{
		DocumentID:    documentID,
		ChunkCount:    chunkCount,
		EmbedProvider: provider,
	}).Get(ctx, nil); err != nil {
		return "", err
	}
	status.CurrentStep = "done"
	status.Status = models.StatusProcessed
	return status.Status, nil
}

func callEmbedWithFailover(ctx workflow.Context, state *providerState, providerCount int, cooldown time.Duration, input activities.EmbedChunksInput, retryCounts map[string]int, preferredIdx int) (activities.EmbedChunksOutput, error) {
	if retryCounts == nil {
		retryCounts = map[string]int{}
	}
	var lastErr error
	maxAttempts := providerCount * 4
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	for attempt := 0; attempt < maxAttempts; attempt++ {
		idx := attempt % providerCount
		if preferredIdx >= 0 {
			idx = (preferredIdx + attempt) % providerCount
		}
		if isProviderDisabled(ctx, state, idx) {
			continue
		}
		input.ProviderIndex = idx
		var out activities.EmbedChunksOutput
		err := workflow.ExecuteActivity(ctx, "EmbedChunksActivity", input).Get(ctx, &out)
		if err == nil {
			return out, nil
		}
		lastErr = err
		key := fmt.Sprintf("embed-%d", idx)
		retryCounts[key]++
		switch providers.ClassifyError(err) {
		case providers.ErrorQuota:
			disableProviderUntil(ctx, state, idx, cooldown)
		case providers.ErrorRate:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key]*2)*time.Second)
				attempt--
			} else {
				disableProviderUntil(ctx, state, idx, 2*time.Minute)
			}
		case providers.ErrorTransient:
			if retryCounts[key] <= 2 {
				workflow.Sleep(ctx, time.Duration(retryCounts[key])*time.Second)
				attempt--
			}
		default:
			disableProviderUntil(ctx, state, idx, time.Minute)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("all embedding providers exhausted")
	}
	return activities.EmbedChunksOutput{}, lastErr
}

func isProviderDisabled(ctx workflow.Context, state *providerState, idx int) bool {
	until, ok := state.disabledUntil[idx]
	if !ok {
		return false
	}
	return workflow.Now(ctx).Before(until)
}

func disableProviderUntil(ctx workflow.Context, state *providerState, idx int, d time.Duration) {
	state.disabledUntil[idx] = workflow.Now(ctx).Add(d)
}

func isExtractionError(err error) bool {
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "no extractable text") || strings.Contains(e, "unsupported file format")
}

func isInvalidTextEncodingError(err error) bool {
	e := strings.ToLower(err.Error())
	return strings.Contains(e, "invalid byte sequence") || strings.Contains(e, "sqlstate 22021")
}

func classifyReason(err error) string {
	switch providers.ClassifyError(err) {
	case providers.ErrorQuota:
		return "embedding provider quota exhausted"
	case providers.ErrorRate:
		return "embedding provider rate limited"
	case providers.ErrorAuth:
		return "embedding provider authentication failed"
	case providers.ErrorTransient:
		return "embedding provider unavailable"
	default:
		return "embedding failed: " + err.Error()
	}
}

func durationOrDefault(seconds int, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}
