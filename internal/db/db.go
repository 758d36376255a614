// Package db mirrors indexed chunks into a Postgres table with a pgvector column.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"notes-rag/internal/config"
	"notes-rag/internal/models"
)

const insertBatchSize = 100

type Document struct {
	bun.BaseModel  `bun:"table:documents,alias:d"`
	ID             int64           `bun:"id,pk,autoincrement"`
	Content        string          `bun:"content,notnull"`
	Embedding      pgvector.Vector `bun:"embedding,notnull,type:vector"`
	SourceFilename string          `bun:"source_filename"`
	PageNumber     int             `bun:"page_number"`
	TotalPages     int             `bun:"total_pages"`
	ChunkID        int             `bun:"chunk_id"`
	ChunkIndex     int             `bun:"chunk_index"`
	Distance       float64         `bun:"distance,scanonly"`
}

// NewDocuments converts embedded chunks into table rows
func NewDocuments(chunks []models.ChunkEmbedding) []Document {
	docs := make([]Document, len(chunks))
	for i, ce := range chunks {
		docs[i] = Document{
			Content:        ce.Content,
			Embedding:      pgvector.NewVector(ce.Embedding),
			SourceFilename: ce.Source,
			PageNumber:     ce.PageNumber,
			TotalPages:     ce.TotalPages,
			ChunkID:        ce.ChunkID,
			ChunkIndex:     ce.Index,
		}
	}
	return docs
}

// Chunk converts a row back into a search result; Score holds the L2 distance
func (d Document) Chunk() models.SearchResult {
	return models.SearchResult{
		Chunk: models.Chunk{
			Content:    d.Content,
			Source:     d.SourceFilename,
			PageNumber: d.PageNumber,
			TotalPages: d.TotalPages,
			ChunkID:    d.ChunkID,
			Index:      d.ChunkIndex,
		},
		Score: float32(d.Distance),
	}
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens (but does not ping) the configured Postgres database
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("database url is required")
	}
	switch cfg.Driver {
	case "pq":
		return sql.Open("postgres", cfg.URL)
	case "", "pgdriver":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.URL)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// InitDB enables pgvector and creates the documents table with vectorSize dimensions
func InitDB(ctx context.Context, db *bun.DB, vectorSize int) error {
	if vectorSize <= 0 {
		return fmt.Errorf("invalid vector size %d", vectorSize)
	}
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if _, err := createTableQuery(db).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	if _, err := resizeQuery(db, vectorSize).Exec(ctx); err != nil {
		return fmt.Errorf("failed to set vector size: %w", err)
	}
	return nil
}

func createTableQuery(db bun.IDB) *bun.CreateTableQuery {
	return db.NewCreateTable().Model((*Document)(nil)).IfNotExists()
}

func resizeQuery(db bun.IDB, vectorSize int) *bun.RawQuery {
	return db.NewRaw("ALTER TABLE ? ALTER COLUMN embedding TYPE vector(?)", bun.Ident("documents"), vectorSize)
}

// StoreDocuments inserts docs in batches inside one transaction
func StoreDocuments(ctx context.Context, db *bun.DB, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for start := 0; start < len(docs); start += insertBatchSize {
			end := min(start+insertBatchSize, len(docs))
			batch := docs[start:end]
			if _, err := tx.NewInsert().Model(&batch).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert documents %d-%d: %w", start, end, err)
			}
		}
		return nil
	})
}

// SearchDocuments returns the limit rows closest to queryEmbedding by L2 distance
func SearchDocuments(ctx context.Context, db *bun.DB, queryEmbedding []float32, limit int) ([]Document, error) {
	var docs []Document
	if err := searchQuery(db, &docs, queryEmbedding, limit).Scan(ctx); err != nil {
		return nil, err
	}
	return docs, nil
}

func searchQuery(db bun.IDB, dest *[]Document, queryEmbedding []float32, limit int) *bun.SelectQuery {
	vec := pgvector.NewVector(queryEmbedding)
	return db.NewSelect().
		Model(dest).
		Column("id", "content", "source_filename", "page_number", "total_pages", "chunk_id", "chunk_index").
		ColumnExpr("embedding <-> ? AS distance", vec).
		OrderExpr("embedding <-> ?", vec).
		Limit(limit)
}

func DropDocuments(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}
