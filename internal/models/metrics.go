package models

type DailyQueryVolume struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type AverageLatency struct {
	Date      string  `json:"date"`
	AvgMillis float64 `json:"avg_latency_ms"`
}

type SuccessRate struct {
	Date string  `json:"date"`
	Rate float64 `json:"success_rate"`
}

type TopQuery struct {
	QueryText string `json:"query_text"`
	Count     int    `json:"count"`
}

type TopDocument struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
	Count      int    `json:"count"`
}

type MetricsSummary struct {
	QueryVolume  []DailyQueryVolume `json:"query_volume"`
	Latency      []AverageLatency   `json:"latency"`
	SuccessRate  []SuccessRate      `json:"success_rate"`
	TopQueries   []TopQuery         `json:"top_queries"`
	TopDocuments []TopDocument      `json:"top_documents"`
}
