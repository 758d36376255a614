package models

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	PageNumber int    `json:"page_number"`
	TotalPages int    `json:"total_pages"`
	ChunkID    int    `json:"chunk_id"` // 1-based position within the page
	Index      int    `json:"index"`    // 0-based position within the document
}

// ChunkEmbedding is a chunk together with its vector
type ChunkEmbedding struct {
	Chunk
	Embedding []float32 `json:"-"`
}

// SearchResult is a chunk returned by a similarity search
type SearchResult struct {
	Chunk
	Score float32 `json:"score"`
}
