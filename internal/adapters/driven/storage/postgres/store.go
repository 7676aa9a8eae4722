// Package postgres provides the primary driven.VectorStore on PostgreSQL
// with the pgvector extension.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// Default configuration values.
const (
	DefaultIndexLists     = 100
	DefaultConnectTimeout = 10 * time.Second
)

// Store persists chunk records in documents and their vectors in embeddings.
type Store struct {
	pool       *pgxpool.Pool
	dimensions int
	indexLists int
}

// Option configures a Store.
type Option func(*Store)

// WithIndexLists sets the ivfflat lists parameter used by CreateIndex.
func WithIndexLists(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.indexLists = n
		}
	}
}

// NewStore connects to connString and verifies the server answers.
func NewStore(ctx context.Context, connString string, dimensions int, opts ...Option) (*Store, error) {
	if connString == "" {
		return nil, fmt.Errorf("%w: postgres connection string is empty", domain.ErrConfiguration)
	}

	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing connection string: %w", domain.ErrConfiguration, err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting: %w", domain.ErrStoreUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", domain.ErrStoreUnavailable, cfg.ConnConfig.Host, err)
	}

	s := &Store{
		pool:       pool,
		dimensions: dimensions,
		indexLists: DefaultIndexLists,
	}
	for _, opt := range opts {
		opt(s)
	}

	logger.Debug("postgres store connected to %s/%s", cfg.ConnConfig.Host, cfg.ConnConfig.Database)
	return s, nil
}

// Setup creates the extension and tables, then checks the dimension of an
// existing embedding column.
func (s *Store) Setup(ctx context.Context) error {
	if s.dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %d", domain.ErrConfiguration, s.dimensions)
	}

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS documents (
			id       BIGSERIAL PRIMARY KEY,
			content  TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			source   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS documents_source_idx ON documents (source)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			id          BIGSERIAL PRIMARY KEY,
			document_id BIGINT NOT NULL REFERENCES documents (id),
			embedding   vector(%d) NOT NULL
		)`, s.dimensions),
		`CREATE INDEX IF NOT EXISTS embeddings_document_idx ON embeddings (document_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: setup: %w", domain.ErrStoreUnavailable, err)
		}
	}

	// pgvector stores the declared dimension as the column's type modifier.
	var existing int
	err := s.pool.QueryRow(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'embeddings'::regclass AND attname = 'embedding'
	`).Scan(&existing)
	if err != nil {
		return fmt.Errorf("%w: reading embedding dimension: %w", domain.ErrStoreUnavailable, err)
	}
	if existing != s.dimensions {
		return fmt.Errorf("%w: embeddings column is vector(%d), configured %d",
			domain.ErrDimensionMismatch, existing, s.dimensions)
	}
	return nil
}

// InsertDocument stores every record of doc in one transaction.
func (s *Store) InsertDocument(ctx context.Context, doc domain.StoredDocument) ([]int64, error) {
	for _, r := range doc.Records {
		if err := domain.CheckDimensions(r.Embedding, s.dimensions); err != nil {
			return nil, err
		}
	}
	if len(doc.Records) == 0 && !doc.Replace {
		return nil, nil
	}

	ids := make([]int64, len(doc.Records))
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if doc.Replace {
			if err := deleteSource(ctx, tx, doc.Source); err != nil {
				return err
			}
		}

		for i, r := range doc.Records {
			metadataJSON, err := json.Marshal(r.Metadata)
			if err != nil {
				return fmt.Errorf("marshalling metadata: %w", err)
			}

			var id int64
			err = tx.QueryRow(ctx,
				`INSERT INTO documents (content, metadata, source) VALUES ($1, $2, $3) RETURNING id`,
				r.Content, metadataJSON, doc.Source,
			).Scan(&id)
			if err != nil {
				return fmt.Errorf("inserting document: %w", err)
			}

			_, err = tx.Exec(ctx,
				`INSERT INTO embeddings (document_id, embedding) VALUES ($1, $2)`,
				id, pgvector.NewVector(r.Embedding),
			)
			if err != nil {
				return fmt.Errorf("inserting embedding: %w", err)
			}
			ids[i] = id
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return ids, nil
}

func deleteSource(ctx context.Context, tx pgx.Tx, source string) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM embeddings
		WHERE document_id IN (SELECT id FROM documents WHERE source = $1)
	`, source)
	if err != nil {
		return fmt.Errorf("deleting embeddings of %s: %w", source, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE source = $1`, source); err != nil {
		return fmt.Errorf("deleting documents of %s: %w", source, err)
	}
	return nil
}

// Search returns the k records nearest to queryVec by cosine distance.
func (s *Store) Search(ctx context.Context, queryVec []float32, k int) ([]driven.VectorHit, error) {
	if err := domain.CheckDimensions(queryVec, s.dimensions); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT d.id, d.content, d.metadata, e.embedding <=> $1 AS distance
		FROM embeddings e
		JOIN documents d ON d.id = e.document_id
		ORDER BY e.embedding <=> $1
		LIMIT $2
	`, pgvector.NewVector(queryVec), k)
	if err != nil {
		return nil, unavailable(fmt.Errorf("searching: %w", err))
	}
	defer rows.Close()

	hits := make([]driven.VectorHit, 0, k)
	for rows.Next() {
		var hit driven.VectorHit
		var metadataJSON []byte
		if err := rows.Scan(&hit.ID, &hit.Content, &metadataJSON, &hit.Distance); err != nil {
			return nil, fmt.Errorf("%w: scanning hit: %w", domain.ErrCorruptRecord, err)
		}
		if err := json.Unmarshal(metadataJSON, &hit.Metadata); err != nil {
			return nil, fmt.Errorf("%w: record %d metadata: %w", domain.ErrCorruptRecord, hit.ID, err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(fmt.Errorf("iterating hits: %w", err))
	}
	return hits, nil
}

// Clear deletes embeddings then documents in one transaction.
func (s *Store) Clear(ctx context.Context) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM embeddings`); err != nil {
			return fmt.Errorf("clearing embeddings: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM documents`); err != nil {
			return fmt.Errorf("clearing documents: %w", err)
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// CreateIndex builds the ivfflat cosine index. Run it after a bulk load so
// the lists are trained on representative data.
func (s *Store) CreateIndex(ctx context.Context) error {
	stmt := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS embeddings_embedding_idx ON embeddings
		 USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)`, s.indexLists)
	if _, err := s.pool.Exec(ctx, stmt); err != nil {
		return unavailable(fmt.Errorf("creating index: %w", err))
	}
	logger.Info("created ivfflat index with %d lists", s.indexLists)
	return nil
}

// Count returns the number of stored chunk records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, unavailable(fmt.Errorf("counting documents: %w", err))
	}
	return n, nil
}

// Dimensions returns the configured vector length.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// unavailable marks err as a store failure unless the caller cancelled.
func unavailable(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}
