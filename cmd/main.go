package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"notes-rag/internal/chromemdb"
	"notes-rag/internal/config"
	"notes-rag/internal/db"
	"notes-rag/internal/embedding"
	"notes-rag/internal/helper"
	"notes-rag/internal/models"
	"notes-rag/internal/parser"
	"notes-rag/internal/vectorstore"
)

const defaultConfigFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", defaultConfigFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to the document file (pdf, docx, xlsx, xlsm, xltx, md, txt)")
	query := flag.String("query", "", "Query to search the index with")
	indexPath := flag.String("index", "", "Path to an index written with -export")
	topK := flag.Int("k", 0, "Number of results to return (defaults to rag.top_k)")
	dryRun := flag.Bool("dry-run", false, "Print the chunks without embedding them")
	export := flag.Bool("export", false, "Export the built index under rag.db_path")
	publish := flag.Bool("publish", false, "Store the chunk embeddings in Postgres")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Error loading config")
	}
	setLogLevel(cfg.Log.Level)
	log.Debug().Interface("config", cfg.RAG).Str("provider", cfg.EmbedLLM.Provider).Msg("Loaded config")

	if *topK <= 0 {
		*topK = cfg.RAG.TopK
	}

	ctx := context.Background()
	switch {
	case *filePath != "" && *indexPath != "":
		log.Fatal().Msg("Please provide either a document with -file or an exported index with -index, but not both")
	case *filePath != "":
		indexFile(ctx, cfg, *filePath, *query, *topK, *dryRun, *export, *publish)
	case *indexPath != "" && *query != "":
		searchExportedIndex(ctx, cfg, *indexPath, *query, *topK)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func indexFile(ctx context.Context, cfg *config.Config, filePath, query string, k int, dryRun, export, publish bool) {
	chunks, err := parser.Load(ctx, filePath, cfg)
	if err != nil {
		if errors.Is(err, parser.ErrFileNotFound) {
			log.Fatal().Str("file", filePath).Msg("File not found")
		}
		log.Fatal().Err(err).Msg("Error parsing document")
	}
	log.Info().Int("chunks", len(chunks)).Str("file", filePath).Msg("Parsed document")

	if dryRun {
		helper.PrettyPrint(os.Stdout, chunks)
		return
	}

	if len(vectorstore.FilterChunks(chunks)) == 0 {
		log.Fatal().Str("file", filePath).Msg("Document has no text to index")
	}
	embedder, err := embedding.Shared(ctx, &cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	chunkEmbeddings, err := vectorstore.Embed(ctx, chunks, embedder)
	if err != nil {
		log.Fatal().Err(err).Msg("Error embedding chunks")
	}
	index, err := vectorstore.BuildFromEmbeddings(ctx, chunkEmbeddings, embedder,
		vectorstore.WithCollectionName(cfg.RAG.CollectionName))
	if err != nil {
		log.Fatal().Err(err).Msg("Error building vector index")
	}

	if export {
		path := exportPath(cfg)
		if err := helper.CreateFolder(path); err != nil {
			log.Fatal().Err(err).Msg("Error creating folder")
		}
		if err := index.Export(path, cfg.RAG.Compress, cfg.RAG.EncryptionKey); err != nil {
			log.Fatal().Err(err).Msg("Error exporting index")
		}
		log.Info().Str("path", path).Msg("Exported index")
	}

	if publish {
		if err := publishChunks(ctx, cfg, chunkEmbeddings); err != nil {
			log.Fatal().Err(err).Msg("Error publishing embeddings")
		}
	}

	if query != "" {
		printResults(ctx, index, query, k)
	}
}

func searchExportedIndex(ctx context.Context, cfg *config.Config, indexPath, query string, k int) {
	embedder, err := embedding.Shared(ctx, &cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	index, err := chromemdb.Import(indexPath, cfg.RAG.CollectionName, cfg.RAG.EncryptionKey, embedder)
	if err != nil {
		log.Fatal().Err(err).Msg("Error importing index")
	}
	printResults(ctx, index, query, k)
}

// publishChunks mirrors the vectors already computed for the index to Postgres
func publishChunks(ctx context.Context, cfg *config.Config, chunkEmbeddings []models.ChunkEmbedding) error {
	sqldb, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return err
	}
	dbInstance := db.NewDB(sqldb, cfg.Database.Debug)
	defer dbInstance.Close()

	if err := db.DropDocuments(ctx, dbInstance); err != nil {
		return fmt.Errorf("error clearing documents: %w", err)
	}
	if err := db.InitDB(ctx, dbInstance, cfg.Database.VectorSize); err != nil {
		return err
	}
	if err := db.StoreDocuments(ctx, dbInstance, db.NewDocuments(chunkEmbeddings)); err != nil {
		return err
	}
	log.Info().Int("documents", len(chunkEmbeddings)).Msg("Published embeddings")
	return nil
}

func printResults(ctx context.Context, index *chromemdb.Index, query string, k int) {
	results, err := index.Search(ctx, query, k)
	if err != nil {
		log.Fatal().Err(err).Msg("Error querying")
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msgf("Matches: %d ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>", len(results))
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s p.%d/%d #%d\n   %s\n\n",
			i+1, r.Score, filepath.Base(r.Source), r.PageNumber, r.TotalPages, r.ChunkID,
			helper.Preview(r.Content, 200))
	}
}

func exportPath(cfg *config.Config) string {
	name := cfg.RAG.CollectionName + ".gob"
	if cfg.RAG.Compress {
		name += ".gz"
	}
	if cfg.RAG.EncryptionKey != "" {
		name += ".enc"
	}
	return filepath.Join(cfg.RAG.DBPath, name)
}
