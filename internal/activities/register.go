package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ExtractSegmentsActivity)
	w.RegisterActivity(a.ChunkSegmentsActivity)
	w.RegisterActivity(a.EmbedChunksActivity)
	w.RegisterActivity(a.UpsertChunksActivity)
	w.RegisterActivity(a.UpdateDocumentStatusActivity)
	w.RegisterActivity(a.MarkDocumentProcessedActivity)
	w.RegisterActivity(a.DeleteDocumentDataActivity)
}
