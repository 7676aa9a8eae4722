package driven

import (
	"context"

	"github.com/custodia-labs/milo/internal/core/domain"
)

// VectorStore persists chunk records with their embeddings and answers
// nearest-neighbour queries by cosine distance.
// It exclusively owns persisted records; records are never updated in place.
type VectorStore interface {
	// Setup creates the schema if needed and verifies that an existing
	// schema uses the configured dimension. A mismatch is ErrDimensionMismatch.
	Setup(ctx context.Context) error

	// InsertDocument persists every record of doc in one unit of work and
	// returns the assigned ids in record order. Either all records are
	// committed or none are. With doc.Replace set, earlier records of
	// doc.Source are removed in the same unit of work.
	InsertDocument(ctx context.Context, doc domain.StoredDocument) ([]int64, error)

	// Search returns up to k records nearest to queryVec, ordered by ascending
	// cosine distance.
	Search(ctx context.Context, queryVec []float32, k int) ([]VectorHit, error)

	// Clear deletes all records, embeddings before documents.
	Clear(ctx context.Context) error

	// CreateIndex builds the approximate similarity index. Intended to run
	// after a bulk load; stores without an index treat it as a no-op.
	CreateIndex(ctx context.Context) error

	// Count returns the number of stored chunk records.
	Count(ctx context.Context) (int, error)

	// Dimensions returns the configured vector length D.
	Dimensions() int

	// Close releases resources.
	Close() error
}

// VectorHit is one nearest-neighbour result as returned by a store.
type VectorHit struct {
	// ID is the record id.
	ID int64

	// Content is the chunk text.
	Content string

	// Metadata is the stored chunk metadata.
	Metadata domain.Metadata

	// Distance is the cosine distance to the query vector (0 = identical).
	Distance float64
}
