// Package vectorstore turns loaded chunks into a searchable index.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"notes-rag/internal/chromemdb"
	"notes-rag/internal/config"
	"notes-rag/internal/embedding"
	"notes-rag/internal/models"
)

var ErrNoValidContent = errors.New("no valid text found in documents")

type options struct {
	collectionName string
}

type Option func(*options)

// WithCollectionName names the collection inside the index, used by Export/Import
func WithCollectionName(name string) Option {
	return func(o *options) {
		o.collectionName = name
	}
}

// Build drops blank chunks, embeds the rest and indexes them.
// The returned index belongs to the caller.
func Build(ctx context.Context, chunks []models.Chunk, embedder embeddings.Embedder, opts ...Option) (*chromemdb.Index, error) {
	chunkEmbeddings, err := Embed(ctx, chunks, embedder)
	if err != nil {
		return nil, err
	}
	return BuildFromEmbeddings(ctx, chunkEmbeddings, embedder, opts...)
}

// Embed drops blank chunks and embeds the rest in one batch, keeping order
func Embed(ctx context.Context, chunks []models.Chunk, embedder embeddings.Embedder) ([]models.ChunkEmbedding, error) {
	valid := FilterChunks(chunks)
	if len(valid) == 0 {
		return nil, ErrNoValidContent
	}
	if embedder == nil {
		return nil, chromemdb.ErrMissingEmbedder
	}
	chunkEmbeddings, err := embedding.GenerateEmbeddings(ctx, embedder, valid)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}
	return chunkEmbeddings, nil
}

// BuildFromEmbeddings indexes vectors produced by Embed; embedder is used for queries
func BuildFromEmbeddings(ctx context.Context, chunkEmbeddings []models.ChunkEmbedding, embedder embeddings.Embedder, opts ...Option) (*chromemdb.Index, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if len(chunkEmbeddings) == 0 {
		return nil, ErrNoValidContent
	}

	index, err := chromemdb.NewIndex(o.collectionName, embedder)
	if err != nil {
		return nil, err
	}
	if err := index.AddChunks(ctx, chunkEmbeddings); err != nil {
		return nil, err
	}

	log.Info().
		Int("chunks", len(chunkEmbeddings)).
		Int("indexed", index.Count()).
		Str("collection", index.Name()).
		Msg("Built vector index")
	return index, nil
}

// BuildWithConfig builds with the process-wide embedder for cfg.EmbedLLM
func BuildWithConfig(ctx context.Context, chunks []models.Chunk, cfg *config.Config) (*chromemdb.Index, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	// checked before the model is loaded
	if len(FilterChunks(chunks)) == 0 {
		return nil, ErrNoValidContent
	}
	embedder, err := embedding.Shared(ctx, &cfg.EmbedLLM)
	if err != nil {
		return nil, err
	}
	return Build(ctx, chunks, embedder, WithCollectionName(cfg.RAG.CollectionName))
}

// FilterChunks keeps the chunks whose trimmed text is not empty
func FilterChunks(chunks []models.Chunk) []models.Chunk {
	valid := make([]models.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if strings.TrimSpace(chunk.Content) == "" {
			continue
		}
		valid = append(valid, chunk)
	}
	return valid
}
