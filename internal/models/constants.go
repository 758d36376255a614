package models

const (
	DefaultChunkSize      = 500
	DefaultChunkOverlap   = 50
	DefaultEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultTopK           = 4

	// metadata keys shared by the loader and the index
	MetaSource     = "source"
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
	MetaChunkID    = "chunk_id"
	MetaIndex      = "index"
)
