package workflows

import (
	"context"
	"errors"
	"testing"

	"docqa/internal/activities"
	"docqa/internal/extract"
	"docqa/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerIngestActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "UpdateDocumentStatusActivity", func(context.Context, activities.UpdateDocumentStatusInput) error { return nil })
	registerActivityName(env, "DeleteDocumentDataActivity", func(context.Context, activities.DeleteDocumentDataInput) error { return nil })
	registerActivityName(env, "ExtractSegmentsActivity", func(context.Context, activities.ExtractSegmentsInput) (activities.ExtractSegmentsOutput, error) {
		return activities.ExtractSegmentsOutput{}, nil
	})
	registerActivityName(env, "ChunkSegmentsActivity", func(context.Context, activities.ChunkSegmentsInput) (activities.ChunkSegmentsOutput, error) {
		return activities.ChunkSegmentsOutput{}, nil
	})
	registerActivityName(env, "EmbedChunksActivity", func(context.Context, activities.EmbedChunksInput) (activities.EmbedChunksOutput, error) {
		return activities.EmbedChunksOutput{}, nil
	})
	registerActivityName(env, "UpsertChunksActivity", func(context.Context, activities.UpsertChunksInput) error { return nil })
	registerActivityName(env, "MarkDocumentProcessedActivity", func(context.Context, activities.MarkDocumentProcessedInput) error { return nil })
}

func TestDocumentIngestWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerIngestActivities(env)

	segments := []extract.Segment{{Text: "hello world", Page: 1}}
	chunks := []models.Chunk{{ChunkID: "c1", DocumentID: "doc1", SequenceIndex: 0, Text: "hello world"}}

	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractSegmentsActivity", mock.Anything, activities.ExtractSegmentsInput{FilePath: "/tmp/f.pdf", FileType: "pdf"}).Return(activities.ExtractSegmentsOutput{Segments: segments}, nil)
	env.OnActivity("ChunkSegmentsActivity", mock.Anything, mock.Anything).Return(activities.ChunkSegmentsOutput{Chunks: chunks}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.1, 0.2}}, ProviderName: "mock", Model: "mock"}, nil)
	env.OnActivity("UpsertChunksActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("MarkDocumentProcessedActivity", mock.Anything, activities.MarkDocumentProcessedInput{DocumentID: "doc1", ChunkCount: 1, EmbedProvider: "mock"}).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{DocumentID: "doc1", FilePath: "/tmp/f.pdf", FileType: "pdf", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.StatusProcessed, out)
}

func TestDocumentIngestWorkflowNoTextFailsGracefully(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerIngestActivities(env)

	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractSegmentsActivity", mock.Anything, mock.Anything).Return(activities.ExtractSegmentsOutput{}, errors.New("no extractable text found in file"))

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{DocumentID: "doc1", FilePath: "/tmp/f.pdf", FileType: "pdf", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.StatusError, out)
}

func TestDocumentIngestWorkflowEmptyFileProcessedWithZeroChunks(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerIngestActivities(env)

	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractSegmentsActivity", mock.Anything, mock.Anything).Return(activities.ExtractSegmentsOutput{Segments: []extract.Segment{{Text: "", Page: 1}}}, nil)
	env.OnActivity("ChunkSegmentsActivity", mock.Anything, mock.Anything).Return(activities.ChunkSegmentsOutput{}, nil)
	env.OnActivity("MarkDocumentProcessedActivity", mock.Anything, activities.MarkDocumentProcessedInput{DocumentID: "doc1", ChunkCount: 0, EmbedProvider: ""}).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{DocumentID: "doc1", FilePath: "/tmp/f.txt", FileType: "txt", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.StatusProcessed, out)
}

func TestDocumentIngestWorkflowEmbedFailover(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerIngestActivities(env)

	chunks := []models.Chunk{{ChunkID: "c1", DocumentID: "doc1", SequenceIndex: 0, Text: "hello"}}

	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractSegmentsActivity", mock.Anything, mock.Anything).Return(activities.ExtractSegmentsOutput{Segments: []extract.Segment{{Text: "hello", Page: 1}}}, nil)
	env.OnActivity("ChunkSegmentsActivity", mock.Anything, mock.Anything).Return(activities.ChunkSegmentsOutput{Chunks: chunks}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.MatchedBy(func(in activities.EmbedChunksInput) bool { return in.ProviderIndex == 0 })).Return(activities.EmbedChunksOutput{}, errors.New("insufficient_quota"))
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.MatchedBy(func(in activities.EmbedChunksInput) bool { return in.ProviderIndex == 1 })).Return(activities.EmbedChunksOutput{Vectors: [][]float32{{0.3, 0.4}}, ProviderName: "backup", Model: "m"}, nil)
	env.OnActivity("UpsertChunksActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("MarkDocumentProcessedActivity", mock.Anything, activities.MarkDocumentProcessedInput{DocumentID: "doc1", ChunkCount: 1, EmbedProvider: "backup"}).Return(nil)

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{DocumentID: "doc1", FilePath: "/tmp/f.pdf", FileType: "pdf", EmbedProviders: 2, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.StatusProcessed, out)
}

func TestDocumentIngestWorkflowAllProvidersExhausted(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DocumentIngestWorkflow)
	registerIngestActivities(env)

	chunks := []models.Chunk{{ChunkID: "c1", DocumentID: "doc1", SequenceIndex: 0, Text: "hello"}}

	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractSegmentsActivity", mock.Anything, mock.Anything).Return(activities.ExtractSegmentsOutput{Segments: []extract.Segment{{Text: "hello", Page: 1}}}, nil)
	env.OnActivity("ChunkSegmentsActivity", mock.Anything, mock.Anything).Return(activities.ChunkSegmentsOutput{Chunks: chunks}, nil)
	env.OnActivity("EmbedChunksActivity", mock.Anything, mock.Anything).Return(activities.EmbedChunksOutput{}, errors.New("insufficient_quota"))

	env.ExecuteWorkflow(DocumentIngestWorkflow, DocumentIngestInput{DocumentID: "doc1", FilePath: "/tmp/f.pdf", FileType: "pdf", EmbedProviders: 1, CooldownSeconds: 10})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, models.StatusError, out)
}
