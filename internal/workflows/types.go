package workflows

type DocumentIngestInput struct {
	DocumentID                  string `json:"document_id"`
	FileName                    string `json:"file_name"`
	FilePath                    string `json:"file_path"`
	FileType                    string `json:"file_type"`
	ChunkSize                   int    `json:"chunk_size"`
	ChunkOverlap                int    `json:"chunk_overlap"`
	EmbedProviders              int    `json:"embed_providers"`
	PreferredEmbedProviderIndex int    `json:"preferred_embed_provider_index"`
	CooldownSeconds             int    `json:"cooldown_seconds"`
	Reingest                    bool   `json:"reingest,omitempty"`
}

type IngestStatus struct {
	DocumentID  string            `json:"document_id"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	FailStage   string            `json:"fail_stage,omitempty"`
	FailReason  string            `json:"fail_reason,omitempty"`
	Provider    string            `json:"embed_provider,omitempty"`
	ChunkCount  int               `json:"chunk_count"`
	RetryCounts map[string]int    `json:"retry_counts"`
	Steps       map[string]string `json:"steps"`
}
