package model

import "time"

// SearchHit is one ranked match returned by the vector index.
type SearchHit struct {
	ChunkID  string   `json:"chunk_id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Score    float32  `json:"score"`
	Rank     int      `json:"rank"`
}

// Source is a retrieved chunk as presented to the user: preview text
// plus full metadata and the similarity score that ranked it.
type Source struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Score    float32  `json:"score"`
	Rank     int      `json:"rank"`
}

// QueryResult is the full outcome of one pipeline query. Cached copies are
// immutable snapshots of this struct.
type QueryResult struct {
	Answer         string    `json:"answer"`
	Sources        []Source  `json:"sources"`
	ModelUsed      string    `json:"model_used"`
	ProcessingTime float64   `json:"processing_time"`
	Cached         bool      `json:"cached"`
	CachedAt       time.Time `json:"cached_at,omitempty"`
}

// IndexStats describes the vector index for the stats surface.
type IndexStats struct {
	TotalRecords  int    `json:"total_records"`
	ActiveRecords int    `json:"active_records"`
	Removed       int    `json:"removed"`
	EmbeddingDim  int    `json:"embedding_dim"`
	Metric        string `json:"metric"`
	IndexKind     string `json:"index_kind"`
	Trained       bool   `json:"trained"`
	Path          string `json:"path"`
}

// PipelineStats is the aggregate stats surface of the query pipeline.
type PipelineStats struct {
	CachedResponses int             `json:"cached_responses"`
	Backends        []BackendStatus `json:"backends"`
	EmbeddingModel  string          `json:"embedding_model"`
	Index           IndexStats      `json:"index"`
}

type BackendStatus struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}
