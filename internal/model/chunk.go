package model

import "time"

type ChunkType string

const (
	ChunkTypeText    ChunkType = "text"
	ChunkTypePage    ChunkType = "page"
	ChunkTypeTabular ChunkType = "tabular"
	ChunkTypeQuery   ChunkType = "query"
)

// Position locates a chunk inside its source document.
type Position struct {
	PageOrRow  int `json:"page_or_row"`
	Total      int `json:"total"`
	ChunkIndex int `json:"chunk_index"`
}

// Chunk is the unit of retrievable text produced by the chunker.
type Chunk struct {
	Text          string    `json:"text"`
	SourceID      string    `json:"source_id"`
	ChunkType     ChunkType `json:"chunk_type"`
	Position      Position  `json:"position"`
	TokenEstimate int       `json:"token_estimate"`
	ContentHash   string    `json:"content_hash"`
	CreatedAt     time.Time `json:"created_at"`
}

// Meta renders the chunk's descriptive fields as index metadata.
func (c *Chunk) Meta() Metadata {
	return Metadata{
		"source_id":    String(c.SourceID),
		"chunk_type":   String(string(c.ChunkType)),
		"page_or_row":  Int(int64(c.Position.PageOrRow)),
		"total":        Int(int64(c.Position.Total)),
		"chunk_index":  Int(int64(c.Position.ChunkIndex)),
		"token_count":  Int(int64(c.TokenEstimate)),
		"content_hash": String(c.ContentHash),
	}
}
