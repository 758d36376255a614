package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/embeddings"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Adapter wraps a langchaingo embedder, pins the vector dimension and
// optionally caches vectors by text
type Adapter struct {
	provider string
	model    string
	impl     embeddings.Embedder

	mu        sync.Mutex
	dimension int
	cache     *lru.Cache[string, []float32]
}

var _ embeddings.Embedder = (*Adapter)(nil)

// Wrap constructs an adapter around an existing langchaingo embedder.
func Wrap(provider, model string, impl embeddings.Embedder) (*Adapter, error) {
	if impl == nil {
		return nil, fmt.Errorf("embedder %s/%s: implementation is required", provider, model)
	}
	return &Adapter{provider: provider, model: model, impl: impl}, nil
}

func (a *Adapter) Provider() string { return a.provider }

func (a *Adapter) Model() string { return a.model }

// Dimension returns the vector length seen so far, 0 before the first call
func (a *Adapter) Dimension() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dimension
}

// EnableCache initializes an LRU cache for embeddings.
func (a *Adapter) EnableCache(size int) error {
	if size <= 0 {
		return fmt.Errorf("embedder %s: cache size must be greater than zero", a.model)
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return fmt.Errorf("embedder %s: init cache: %w", a.model, err)
	}
	a.mu.Lock()
	a.cache = cache
	a.mu.Unlock()
	return nil
}

// EmbedDocuments returns one vector per text, in order
func (a *Adapter) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	missing := make(map[string][]int)
	for i, text := range texts {
		if vector, ok := a.lookup(text); ok {
			results[i] = vector
			continue
		}
		missing[text] = append(missing[text], i)
	}
	if len(missing) == 0 {
		return results, nil
	}

	unique := make([]string, 0, len(missing))
	for i, text := range texts {
		if idx := missing[text]; len(idx) > 0 && idx[0] == i {
			unique = append(unique, text)
		}
	}
	vectors, err := a.impl.EmbedDocuments(ctx, unique)
	if err != nil {
		return nil, a.withContext(err)
	}
	if len(vectors) != len(unique) {
		return nil, a.withContext(fmt.Errorf("received %d embeddings for %d texts", len(vectors), len(unique)))
	}
	for i, vector := range vectors {
		if err := a.checkDimension(vector); err != nil {
			return nil, err
		}
		for _, idx := range missing[unique[i]] {
			results[idx] = cloneVector(vector)
		}
		a.store(unique[i], vector)
	}
	return results, nil
}

// EmbedQuery embeds a single text
func (a *Adapter) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if vector, ok := a.lookup(text); ok {
		return vector, nil
	}
	vector, err := a.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, a.withContext(err)
	}
	if err := a.checkDimension(vector); err != nil {
		return nil, err
	}
	a.store(text, vector)
	return vector, nil
}

func (a *Adapter) checkDimension(vector []float32) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(vector) == 0 {
		return a.withContext(errors.New("empty embedding"))
	}
	if a.dimension == 0 {
		a.dimension = len(vector)
		return nil
	}
	if len(vector) != a.dimension {
		return a.withContext(fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), a.dimension))
	}
	return nil
}

func (a *Adapter) lookup(text string) ([]float32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cache == nil {
		return nil, false
	}
	vector, ok := a.cache.Get(cacheKey(text))
	if !ok {
		return nil, false
	}
	return cloneVector(vector), true
}

func (a *Adapter) store(text string, vector []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cache != nil {
		a.cache.Add(cacheKey(text), cloneVector(vector))
	}
}

func (a *Adapter) withContext(err error) error {
	return fmt.Errorf("embedder %s/%s: %w", a.provider, a.model, err)
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(src []float32) []float32 {
	if len(src) == 0 {
		return nil
	}
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}
