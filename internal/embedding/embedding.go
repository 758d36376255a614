package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/embeddings/cybertron"
	hfembeddings "github.com/tmc/langchaingo/embeddings/huggingface"
	"github.com/tmc/langchaingo/llms/huggingface"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"notes-rag/internal/config"
)

var errMissingConfig = errors.New("embedding config is required")

var (
	sharedMu sync.Mutex
	shared   = map[string]*Adapter{}
)

// Shared returns the process-wide embedder for cfg, building it on first use.
// Loading a model is the expensive part of indexing, so callers that index
// several documents should go through here instead of NewEmbedder.
func Shared(ctx context.Context, cfg *config.LLMConfig) (*Adapter, error) {
	if cfg == nil {
		return nil, errMissingConfig
	}
	key := strings.Join([]string{cfg.Provider, cfg.Model, cfg.BaseURL}, "|")

	sharedMu.Lock()
	defer sharedMu.Unlock()
	if a, ok := shared[key]; ok {
		return a, nil
	}
	a, err := NewEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	shared[key] = a
	return a, nil
}

// ResetShared drops every cached embedder
func ResetShared() {
	sharedMu.Lock()
	shared = map[string]*Adapter{}
	sharedMu.Unlock()
}

// NewEmbedder creates a new embedder for the configured provider
func NewEmbedder(ctx context.Context, cfg *config.LLMConfig) (*Adapter, error) {
	if cfg == nil {
		return nil, errMissingConfig
	}
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Creating embedder")

	impl, err := buildProviderEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a, err := Wrap(cfg.Provider, cfg.Model, impl)
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		if err := a.EnableCache(cfg.CacheSize); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func buildProviderEmbedder(_ context.Context, cfg *config.LLMConfig) (embeddings.Embedder, error) {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	opts := []embeddings.Option{embeddings.WithBatchSize(batchSize)}

	switch cfg.Provider {
	case config.ProviderLocal, "":
		return newLocalEmbedder(cfg, opts...)
	case config.ProviderHuggingface:
		return newHuggingfaceEmbedder(cfg, batchSize)
	case config.ProviderOllama:
		return newOllamaEmbedder(cfg, opts...)
	case config.ProviderOpenAI:
		return newOpenAIEmbedder(cfg, opts...)
	default:
		return nil, fmt.Errorf("embedding provider %q is not supported", cfg.Provider)
	}
}

// the model is downloaded once into ModelsDir and runs in process
func newLocalEmbedder(cfg *config.LLMConfig, opts ...embeddings.Option) (embeddings.Embedder, error) {
	var copts []cybertron.Option
	if cfg.Model != "" {
		copts = append(copts, cybertron.WithModel(cfg.Model))
	}
	if cfg.ModelsDir != "" {
		copts = append(copts, cybertron.WithModelsDir(cfg.ModelsDir))
	}
	client, err := cybertron.NewCybertron(copts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load local model %s: %w", cfg.Model, err)
	}
	return embeddings.NewEmbedder(client, opts...)
}

func newHuggingfaceEmbedder(cfg *config.LLMConfig, batchSize int) (embeddings.Embedder, error) {
	llmOpts := []huggingface.Option{huggingface.WithModel(cfg.Model)}
	if cfg.Key != "" {
		llmOpts = append(llmOpts, huggingface.WithToken(cfg.Key))
	}
	if cfg.BaseURL != "" {
		llmOpts = append(llmOpts, huggingface.WithURL(cfg.BaseURL))
	}
	llm, err := huggingface.New(llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize huggingface client: %w", err)
	}
	return hfembeddings.NewHuggingface(
		hfembeddings.WithClient(*llm),
		hfembeddings.WithModel(cfg.Model),
		hfembeddings.WithBatchSize(batchSize),
	)
}

func newOllamaEmbedder(cfg *config.LLMConfig, opts ...embeddings.Option) (embeddings.Embedder, error) {
	llmOpts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		llmOpts = append(llmOpts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	return embeddings.NewEmbedder(llm, opts...)
}

func newOpenAIEmbedder(cfg *config.LLMConfig, opts ...embeddings.Option) (embeddings.Embedder, error) {
	llmOpts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
	if cfg.Key != "" {
		llmOpts = append(llmOpts, openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")))
	}
	if cfg.BaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize openai client: %w", err)
	}
	return embeddings.NewEmbedder(llm, opts...)
}
