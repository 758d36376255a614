package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"notes-rag/internal/models"
)

const (
	ProviderLocal       = "local"
	ProviderHuggingface = "huggingface"
	ProviderOllama      = "ollama"
	ProviderOpenAI      = "openai"
)

type Config struct {
	RAG      RAGConfig      `yaml:"rag"`
	EmbedLLM LLMConfig      `yaml:"embedding"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

type RAGConfig struct {
	ChunkSize      int    `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap   int    `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TopK           int    `yaml:"top_k" validate:"gt=0"`
	CollectionName string `yaml:"collection_name"`
	DBPath         string `yaml:"db_path"`
	EncryptionKey  string `yaml:"encryption_key" validate:"omitempty,len=32"`
	Compress       bool   `yaml:"compress"`
}

// LLMConfig describes the embedding model and where it runs
type LLMConfig struct {
	Provider  string `yaml:"provider" validate:"oneof=local huggingface ollama openai"`
	Model     string `yaml:"model" validate:"required"`
	BaseURL   string `yaml:"base_url"`
	Key       string `yaml:"key"`
	ModelsDir string `yaml:"models_dir"`
	BatchSize int    `yaml:"batch_size" validate:"gt=0"`
	CacheSize int    `yaml:"cache_size" validate:"gte=0"`
}

type DatabaseConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	Driver     string `yaml:"driver" validate:"omitempty,oneof=pgdriver pq"`
	Debug      bool   `yaml:"debug"`
	VectorSize int    `yaml:"vector_size" validate:"gt=0"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file overrides a value
func Default() *Config {
	return &Config{
		RAG: RAGConfig{
			ChunkSize:      models.DefaultChunkSize,
			ChunkOverlap:   models.DefaultChunkOverlap,
			TopK:           models.DefaultTopK,
			CollectionName: "notes",
			DBPath:         "./chromemdb",
		},
		EmbedLLM: LLMConfig{
			Provider:  ProviderLocal,
			Model:     models.DefaultEmbeddingModel,
			ModelsDir: "models",
			BatchSize: 64,
		},
		Database: DatabaseConfig{
			Driver:     "pgdriver",
			VectorSize: 384,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads the yaml file at path on top of the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags on every section
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// fill the embedding key from the environment when the file leaves it empty
func (c *Config) applyEnv() {
	if c.EmbedLLM.Key != "" {
		return
	}
	switch c.EmbedLLM.Provider {
	case ProviderHuggingface:
		c.EmbedLLM.Key = os.Getenv("HUGGINGFACEHUB_API_TOKEN")
	case ProviderOpenAI:
		c.EmbedLLM.Key = os.Getenv("OPENAI_API_KEY")
	}
}
