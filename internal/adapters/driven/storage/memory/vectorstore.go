// Package memory provides an in-memory driven.VectorStore for tests and
// dry runs. Nothing survives the process.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

// Ensure VectorStore implements the interface.
var _ driven.VectorStore = (*VectorStore)(nil)

type record struct {
	id        int64
	source    string
	content   string
	metadata  domain.Metadata
	embedding []float32
}

// VectorStore is an in-memory implementation of driven.VectorStore using
// brute-force cosine distance.
type VectorStore struct {
	mu         sync.RWMutex
	dimensions int
	records    []record
	nextID     int64
}

// NewVectorStore creates a new in-memory vector store of the given dimension.
func NewVectorStore(dimensions int) *VectorStore {
	return &VectorStore{dimensions: dimensions, nextID: 1}
}

// Setup validates the configured dimension.
func (s *VectorStore) Setup(_ context.Context) error {
	if s.dimensions <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got %d", domain.ErrConfiguration, s.dimensions)
	}
	return nil
}

// InsertDocument stores every record of doc or none of them.
func (s *VectorStore) InsertDocument(_ context.Context, doc domain.StoredDocument) ([]int64, error) {
	for _, r := range doc.Records {
		if err := domain.CheckDimensions(r.Embedding, s.dimensions); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.Replace {
		kept := s.records[:0]
		for _, r := range s.records {
			if r.source != doc.Source {
				kept = append(kept, r)
			}
		}
		s.records = kept
	}

	ids := make([]int64, len(doc.Records))
	for i, r := range doc.Records {
		ids[i] = s.nextID
		s.records = append(s.records, record{
			id:        s.nextID,
			source:    doc.Source,
			content:   r.Content,
			metadata:  r.Metadata,
			embedding: append([]float32(nil), r.Embedding...),
		})
		s.nextID++
	}
	return ids, nil
}

// Search returns up to k records nearest to queryVec.
func (s *VectorStore) Search(_ context.Context, queryVec []float32, k int) ([]driven.VectorHit, error) {
	if err := domain.CheckDimensions(queryVec, s.dimensions); err != nil {
		return nil, err
	}

	s.mu.RLock()
	hits := make([]driven.VectorHit, len(s.records))
	for i, r := range s.records {
		hits[i] = driven.VectorHit{
			ID:       r.id,
			Content:  r.content,
			Metadata: r.metadata,
			Distance: domain.CosineDistance(queryVec, r.embedding),
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Clear deletes all records.
func (s *VectorStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return nil
}

// CreateIndex is a no-op; search is always exhaustive.
func (s *VectorStore) CreateIndex(_ context.Context) error {
	return nil
}

// Count returns the number of stored records.
func (s *VectorStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Dimensions returns the configured vector length.
func (s *VectorStore) Dimensions() int {
	return s.dimensions
}

// Close releases resources.
func (s *VectorStore) Close() error {
	return nil
}
