package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/milo/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

const (
	dbFile           = "milo.db"
	metaDimensionKey = "dimensions"
)

// Store is a SQLite-backed vector store.
type Store struct {
	db         *sql.DB
	path       string
	dimensions int
}

// NewStore opens (creating if needed) the store in dataDir and runs migrations.
// If dataDir is empty, defaults to ~/.milo/data.
func NewStore(dataDir string, dimensions int) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".milo", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFile)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %w", domain.ErrStoreUnavailable, err)
	}

	s := &Store{
		db:         db,
		path:       dbPath,
		dimensions: dimensions,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Debug("sqlite store opened at %s", dbPath)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Dimensions returns the configured vector length.
func (s *Store) Dimensions() int {
	return s.dimensions
}

// migrate runs all pending migrations, recording each applied version.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}

	return nil
}

// Setup records the store dimension on first use and verifies it afterwards.
func (s *Store) Setup(ctx context.Context) error {
	if s.dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %d", domain.ErrConfiguration, s.dimensions)
	}

	var stored string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM store_meta WHERE key = ?", metaDimensionKey).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, "INSERT INTO store_meta (key, value) VALUES (?, ?)",
			metaDimensionKey, strconv.Itoa(s.dimensions))
		if err != nil {
			return fmt.Errorf("%w: recording dimensions: %w", domain.ErrStoreUnavailable, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("%w: reading dimensions: %w", domain.ErrStoreUnavailable, err)
	}

	existing, err := strconv.Atoi(stored)
	if err != nil {
		return fmt.Errorf("%w: corrupt dimensions %q in store_meta", domain.ErrConfiguration, stored)
	}
	if existing != s.dimensions {
		return fmt.Errorf("%w: store at %s holds %d-dimensional vectors, configured %d",
			domain.ErrDimensionMismatch, s.path, existing, s.dimensions)
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: beginning transaction: %w", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if doc.Replace {
		if err := deleteSource(ctx, tx, doc.Source); err != nil {
			return nil, err
		}
	}

	docStmt, err := tx.PrepareContext(ctx, "INSERT INTO documents (content, metadata, source) VALUES (?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer docStmt.Close()

	embStmt, err := tx.PrepareContext(ctx, "INSERT INTO embeddings (document_id, embedding) VALUES (?, ?)")
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer embStmt.Close()

	ids := make([]int64, len(doc.Records))
	for i, r := range doc.Records {
		metadataJSON, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshalling metadata: %w", err)
		}

		res, err := docStmt.ExecContext(ctx, r.Content, string(metadataJSON), doc.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: inserting document: %w", domain.ErrStoreUnavailable, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("reading document id: %w", err)
		}

		if _, err := embStmt.ExecContext(ctx, id, float32SliceToBytes(r.Embedding)); err != nil {
			return nil, fmt.Errorf("%w: inserting embedding: %w", domain.ErrStoreUnavailable, err)
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing transaction: %w", domain.ErrStoreUnavailable, err)
	}
	return ids, nil
}

func deleteSource(ctx context.Context, tx *sql.Tx, source string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM embeddings
		WHERE document_id IN (SELECT id FROM documents WHERE source = ?)
	`, source)
	if err != nil {
		return fmt.Errorf("%w: deleting embeddings of %s: %w", domain.ErrStoreUnavailable, source, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE source = ?", source); err != nil {
		return fmt.Errorf("%w: deleting documents of %s: %w", domain.ErrStoreUnavailable, source, err)
	}
	return nil
}

// Search scans every embedding and returns the k nearest by cosine distance.
func (s *Store) Search(ctx context.Context, queryVec []float32, k int) ([]driven.VectorHit, error) {
	if err := domain.CheckDimensions(queryVec, s.dimensions); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.content, d.metadata, e.embedding
		FROM embeddings e
		JOIN documents d ON d.id = e.document_id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: querying embeddings: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var hits []driven.VectorHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var hit driven.VectorHit
		var metadataJSON string
		var blob []byte
		if err := rows.Scan(&hit.ID, &hit.Content, &metadataJSON, &blob); err != nil {
			return nil, fmt.Errorf("%w: scanning embedding: %w", domain.ErrCorruptRecord, err)
		}
		if err := json.Unmarshal([]byte(metadataJSON), &hit.Metadata); err != nil {
			return nil, fmt.Errorf("%w: record %d metadata: %w", domain.ErrCorruptRecord, hit.ID, err)
		}
		embedding := bytesToFloat32Slice(blob)
		if err := domain.CheckDimensions(embedding, s.dimensions); err != nil {
			return nil, fmt.Errorf("record %d: %w", hit.ID, err)
		}
		hit.Distance = domain.CosineDistance(queryVec, embedding)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating embeddings: %w", domain.ErrStoreUnavailable, err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Clear deletes embeddings then documents in one transaction.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM embeddings"); err != nil {
		return fmt.Errorf("%w: clearing embeddings: %w", domain.ErrStoreUnavailable, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("%w: clearing documents: %w", domain.ErrStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// CreateIndex is a no-op; search is always exhaustive.
func (s *Store) CreateIndex(_ context.Context) error {
	return nil
}

// Count returns the number of stored chunk records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: counting documents: %w", domain.ErrStoreUnavailable, err)
	}
	return n, nil
}

// float32SliceToBytes converts []float32 to a little-endian byte slice.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
