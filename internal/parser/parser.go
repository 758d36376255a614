package parser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"notes-rag/internal/config"
	"notes-rag/internal/models"
)

var (
	ErrFileNotFound      = errors.New("file not found")
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

type ParserConfig struct {
	Config *config.Config
}

const defaultPageNumber = 1

// pageLoader turns a file into one schema.Document per page, sheet or section
type pageLoader func(ctx context.Context, filePath string) ([]schema.Document, error)

var loaders = map[string]pageLoader{
	".pdf":  loadPDFPages,
	".docx": loadDOCXPages,
	".pptx": loadPPTXPages,
	".xlsx": loadXLSXPages,
	".xlsm": loadWorkbookPages,
	".xltx": loadWorkbookPages,
	".md":   loadMarkdownPages,
	".txt":  loadTextPages,
}

// Load reads filePath according to its extension and splits it into chunks
func Load(ctx context.Context, filePath string, cfg *config.Config) ([]models.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	loader, ok := loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	return newParserConfig(cfg).load(ctx, filePath, loader)
}

// LoadPDF reads a PDF page by page and splits every page into overlapping chunks
func LoadPDF(ctx context.Context, filePath string, cfg *config.Config) ([]models.Chunk, error) {
	return newParserConfig(cfg).load(ctx, filePath, loadPDFPages)
}

func newParserConfig(cfg *config.Config) *ParserConfig {
	// if config is nil, use default values
	if cfg == nil {
		cfg = config.Default()
	}
	rag := cfg.RAG
	if rag.ChunkSize <= 0 {
		rag.ChunkSize = models.DefaultChunkSize
	}
	if rag.ChunkOverlap < 0 || rag.ChunkOverlap >= rag.ChunkSize {
		rag.ChunkOverlap = min(models.DefaultChunkOverlap, rag.ChunkSize/2)
	}
	return &ParserConfig{Config: &config.Config{RAG: rag}}
}

func (p *ParserConfig) load(ctx context.Context, filePath string, loader pageLoader) ([]models.Chunk, error) {
	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, filePath)
		}
		return nil, err
	}

	pages, err := loader(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filePath, err)
	}
	for i := range pages {
		pages[i].Metadata[models.MetaSource] = filePath
	}

	chunks, err := p.splitPages(pages)
	if err != nil {
		return nil, fmt.Errorf("failed to split %s: %w", filePath, err)
	}
	log.Debug().Str("file", filePath).Int("pages", len(pages)).Int("chunks", len(chunks)).Msg("Loaded document")
	return chunks, nil
}

func (p *ParserConfig) splitter() textsplitter.TextSplitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(p.Config.RAG.ChunkSize),
		textsplitter.WithChunkOverlap(p.Config.RAG.ChunkOverlap),
	)
}

// splitPages re-segments the page documents and numbers the chunks per page
func (p *ParserConfig) splitPages(pages []schema.Document) ([]models.Chunk, error) {
	docs, err := textsplitter.SplitDocuments(p.splitter(), pages)
	if err != nil {
		return nil, err
	}

	chunks := make([]models.Chunk, 0, len(docs))
	lastPage, chunkID := 0, 0
	for _, doc := range docs {
		page := metaInt(doc.Metadata, models.MetaPage)
		if page != lastPage {
			lastPage, chunkID = page, 0
		}
		chunkID++
		source, _ := doc.Metadata[models.MetaSource].(string)
		chunks = append(chunks, models.Chunk{
			Content:    doc.PageContent,
			Source:     source,
			PageNumber: page,
			TotalPages: metaInt(doc.Metadata, models.MetaTotalPages),
			ChunkID:    chunkID,
			Index:      len(chunks),
		})
	}
	return chunks, nil
}

func pageDocument(text string, page, total int) schema.Document {
	return schema.Document{
		PageContent: text,
		Metadata: map[string]any{
			models.MetaPage:       page,
			models.MetaTotalPages: total,
		},
	}
}

func metaInt(meta map[string]any, key string) int {
	v, _ := meta[key].(int)
	return v
}
