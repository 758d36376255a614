package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"

	"notes-rag/internal/models"
)

var (
	ErrMissingEmbedder = errors.New("embedder is required")
	ErrInvalidK        = errors.New("number of results must be greater than zero")
)

// Index is an in-memory exact cosine index over embedded chunks.
// It satisfies langchaingo's vectorstores.VectorStore, so it can be handed to
// a retrieval chain through vectorstores.ToRetriever.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embeddings.Embedder
}

var _ vectorstores.VectorStore = (*Index)(nil)

// NewIndex creates an empty index; embedder turns queries into vectors
func NewIndex(collectionName string, embedder embeddings.Embedder) (*Index, error) {
	if embedder == nil {
		return nil, ErrMissingEmbedder
	}
	if collectionName == "" {
		collectionName = "notes-" + uuid.NewString()
	}
	db := chromem.NewDB()
	c, err := db.GetOrCreateCollection(collectionName, nil, embedFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	return &Index{db: db, collection: c, embedder: embedder}, nil
}

// Import loads an index previously written by Export
func Import(filePath, collectionName, encryptionKey string, embedder embeddings.Embedder) (*Index, error) {
	if embedder == nil {
		return nil, ErrMissingEmbedder
	}
	db := chromem.NewDB()
	if err := db.ImportFromFile(filePath, encryptionKey, collectionName); err != nil {
		return nil, fmt.Errorf("failed to import database: %w", err)
	}
	c := db.GetCollection(collectionName, embedFunc(embedder))
	if c == nil {
		return nil, fmt.Errorf("collection %q not found in %s", collectionName, filePath)
	}
	return &Index{db: db, collection: c, embedder: embedder}, nil
}

func (i *Index) Name() string { return i.collection.Name }

func (i *Index) Count() int { return i.collection.Count() }

// AddChunks stores precomputed chunk embeddings. Every chunk gets its own
// document, even when two chunks share source, position or text.
func (i *Index) AddChunks(ctx context.Context, chunks []models.ChunkEmbedding) error {
	if len(chunks) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(chunks))
	for _, ce := range chunks {
		docs = append(docs, chromem.Document{
			ID:        uuid.NewString(),
			Content:   ce.Content,
			Metadata:  chunkMetadata(ce.Chunk),
			Embedding: ce.Embedding,
		})
	}
	if err := i.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// AddDocuments embeds and stores langchaingo documents, returning their ids
func (i *Index) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	opts := i.options(options...)
	if opts.Deduplicater != nil {
		kept := docs[:0:0]
		for _, doc := range docs {
			if !opts.Deduplicater(ctx, doc) {
				kept = append(kept, doc)
			}
		}
		docs = kept
	}
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for n, doc := range docs {
		if doc.PageContent == "" {
			return nil, fmt.Errorf("document %d has no content", n)
		}
		texts[n] = doc.PageContent
	}
	vectors, err := opts.Embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("received %d embeddings for %d documents", len(vectors), len(docs))
	}

	ids := make([]string, len(docs))
	chromemDocs := make([]chromem.Document, len(docs))
	for n, doc := range docs {
		ids[n] = uuid.NewString()
		chromemDocs[n] = chromem.Document{
			ID:        ids[n],
			Content:   doc.PageContent,
			Metadata:  stringMetadata(doc.Metadata),
			Embedding: vectors[n],
		}
	}
	if err := i.collection.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}
	return ids, nil
}

// SimilaritySearch returns the numDocuments nearest documents to query.
// Filters, when given, must be a map[string]string of exact metadata matches.
func (i *Index) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	opts := i.options(options...)
	vector, err := opts.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	var where map[string]string
	if opts.Filters != nil {
		f, ok := opts.Filters.(map[string]string)
		if !ok {
			return nil, fmt.Errorf("unsupported filter type %T", opts.Filters)
		}
		where = f
	}

	results, err := i.query(ctx, vector, numDocuments, where)
	if err != nil {
		return nil, err
	}
	docs := make([]schema.Document, 0, len(results))
	for _, r := range results {
		if opts.ScoreThreshold > 0 && r.Similarity < opts.ScoreThreshold {
			continue
		}
		docs = append(docs, schema.Document{
			PageContent: r.Content,
			Metadata:    anyMetadata(r.Metadata),
			Score:       r.Similarity,
		})
	}
	return docs, nil
}

// Search returns the k chunks nearest to query, best first
func (i *Index) Search(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	vector, err := i.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return i.SearchByVector(ctx, vector, k)
}

// SearchByVector returns the k chunks nearest to vector, best first
func (i *Index) SearchByVector(ctx context.Context, vector []float32, k int) ([]models.SearchResult, error) {
	results, err := i.query(ctx, vector, k, nil)
	if err != nil {
		return nil, err
	}
	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		chunk := metadataChunk(r.Metadata)
		chunk.Content = r.Content
		out = append(out, models.SearchResult{Chunk: chunk, Score: r.Similarity})
	}
	return out, nil
}

func (i *Index) query(ctx context.Context, vector []float32, k int, where map[string]string) ([]chromem.Result, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if len(vector) == 0 {
		return nil, errors.New("query embedding is empty")
	}
	count := i.collection.Count()
	if count == 0 {
		return nil, nil
	}
	// chromem rejects k above the collection size
	k = min(k, count)
	results, err := i.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: vector,
		NResults:       k,
		Where:          where,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	return results, nil
}

// Export writes the collection to filePath; encryptionKey must be empty or 32 bytes
func (i *Index) Export(filePath string, compress bool, encryptionKey string) error {
	if filePath == "" {
		return errors.New("file path is required")
	}
	log.Debug().
		Str("collection", i.collection.Name).
		Str("file", filePath).
		Bool("compress", compress).
		Bool("encrypted", encryptionKey != "").
		Msg("Exporting collection")
	if err := i.db.ExportToFile(filePath, compress, encryptionKey, i.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

func (i *Index) options(options ...vectorstores.Option) vectorstores.Options {
	opts := vectorstores.Options{}
	for _, o := range options {
		o(&opts)
	}
	if opts.Embedder == nil {
		opts.Embedder = i.embedder
	}
	return opts
}

func embedFunc(embedder embeddings.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
}

func chunkMetadata(chunk models.Chunk) map[string]string {
	return map[string]string{
		models.MetaSource:     chunk.Source,
		models.MetaPage:       strconv.Itoa(chunk.PageNumber),
		models.MetaTotalPages: strconv.Itoa(chunk.TotalPages),
		models.MetaChunkID:    strconv.Itoa(chunk.ChunkID),
		models.MetaIndex:      strconv.Itoa(chunk.Index),
	}
}

func metadataChunk(meta map[string]string) models.Chunk {
	atoi := func(key string) int {
		n, _ := strconv.Atoi(meta[key])
		return n
	}
	return models.Chunk{
		Source:     meta[models.MetaSource],
		PageNumber: atoi(models.MetaPage),
		TotalPages: atoi(models.MetaTotalPages),
		ChunkID:    atoi(models.MetaChunkID),
		Index:      atoi(models.MetaIndex),
	}
}

func stringMetadata(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = fmt.Sprint(v)
	}
	return out
}

var numericMetadata = map[string]bool{
	models.MetaPage:       true,
	models.MetaTotalPages: true,
	models.MetaChunkID:    true,
	models.MetaIndex:      true,
}

// positional keys come back as ints so page numbers survive a round trip,
// everything else stays a string
func anyMetadata(meta map[string]string) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if numericMetadata[k] {
			if n, err := strconv.Atoi(v); err == nil {
				out[k] = n
				continue
			}
		}
		out[k] = v
	}
	return out
}
