// Package storagetest holds the behaviour every driven.VectorStore must share.
// Each store package runs Run against its own constructor.
package storagetest

import (
	"context"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

// Dims is the vector length used by the suite.
const Dims = 4

// Factory returns a fresh, empty store configured with dims. The store must
// not have had Setup called.
type Factory func(t *testing.T, dims int) driven.VectorStore

// Run executes the shared vector store suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("Setup is idempotent", func(t *testing.T) {
		s := open(t, newStore)
		require.NoError(t, s.Setup(context.Background()))
		assert.Equal(t, Dims, s.Dimensions())
	})

	t.Run("InsertDocument assigns ids in order", func(t *testing.T) {
		s := open(t, newStore)
		ids, err := s.InsertDocument(context.Background(), Doc("a.txt", "one", "two", "three"))
		require.NoError(t, err)
		require.Len(t, ids, 3)
		assert.Less(t, ids[0], ids[1])
		assert.Less(t, ids[1], ids[2])
		assertCount(t, s, 3)
	})

	t.Run("InsertDocument rejects wrong dimensions atomically", func(t *testing.T) {
		s := open(t, newStore)
		doc := Doc("a.txt", "one", "two")
		doc.Records[1].Embedding = []float32{1, 0}
		_, err := s.InsertDocument(context.Background(), doc)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
		assertCount(t, s, 0)
	})

	t.Run("InsertDocument is additive", func(t *testing.T) {
		s := open(t, newStore)
		ctx := context.Background()
		_, err := s.InsertDocument(ctx, Doc("a.txt", "one"))
		require.NoError(t, err)
		_, err = s.InsertDocument(ctx, Doc("a.txt", "one"))
		require.NoError(t, err)
		assertCount(t, s, 2)
	})

	t.Run("Replace removes earlier records of the source", func(t *testing.T) {
		s := open(t, newStore)
		ctx := context.Background()
		_, err := s.InsertDocument(ctx, Doc("a.txt", "one", "two"))
		require.NoError(t, err)
		_, err = s.InsertDocument(ctx, Doc("b.txt", "three"))
		require.NoError(t, err)

		doc := Doc("a.txt", "four")
		doc.Replace = true
		_, err = s.InsertDocument(ctx, doc)
		require.NoError(t, err)
		assertCount(t, s, 2)

		empty := domain.StoredDocument{Source: "a.txt", Replace: true}
		_, err = s.InsertDocument(ctx, empty)
		require.NoError(t, err)
		assertCount(t, s, 1)
	})

	t.Run("Search orders by distance", func(t *testing.T) {
		s := open(t, newStore)
		ctx := context.Background()
		doc := domain.StoredDocument{Source: "a.txt", Records: []domain.StoredChunkRecord{
			Record("a.txt", "far", Axis(1)),
			Record("a.txt", "exact", Axis(0)),
			Record("a.txt", "near", domain.Normalize([]float32{1, 0.2, 0, 0})),
		}}
		_, err := s.InsertDocument(ctx, doc)
		require.NoError(t, err)

		hits, err := s.Search(ctx, Axis(0), 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "exact", hits[0].Content)
		assert.InDelta(t, 0, hits[0].Distance, 1e-5)
		assert.Equal(t, "near", hits[1].Content)
		assert.Greater(t, hits[1].Distance, hits[0].Distance)
		assert.Equal(t, "a.txt", hits[0].Metadata.Source)
		require.NotNil(t, hits[0].Metadata.ChunkStart)
	})

	t.Run("Search on empty store", func(t *testing.T) {
		s := open(t, newStore)
		hits, err := s.Search(context.Background(), Axis(0), 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("Search rejects wrong query vector length", func(t *testing.T) {
		s := open(t, newStore)
		_, err := s.Search(context.Background(), []float32{1}, 5)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})

	t.Run("Clear removes everything", func(t *testing.T) {
		s := open(t, newStore)
		ctx := context.Background()
		_, err := s.InsertDocument(ctx, Doc("a.txt", "one", "two"))
		require.NoError(t, err)
		require.NoError(t, s.Clear(ctx))
		assertCount(t, s, 0)
		hits, err := s.Search(ctx, Axis(0), 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("CreateIndex after load", func(t *testing.T) {
		s := open(t, newStore)
		ctx := context.Background()
		_, err := s.InsertDocument(ctx, Doc("a.txt", "one", "two"))
		require.NoError(t, err)
		require.NoError(t, s.CreateIndex(ctx))
		hits, err := s.Search(ctx, Axis(0), 1)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})

	t.Run("Metadata survives storage", func(t *testing.T) {
		s := open(t, newStore)
		ctx := context.Background()
		doc := Doc("docs/a.md", "one")
		doc.Records[0].Metadata.Extra = map[string]any{"size": float64(42)}
		_, err := s.InsertDocument(ctx, doc)
		require.NoError(t, err)

		hits, err := s.Search(ctx, Axis(0), 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		meta := hits[0].Metadata
		assert.Equal(t, "docs/a.md", meta.Source)
		assert.Equal(t, "a.md", meta.Filename)
		assert.Equal(t, "md", meta.Type)
		assert.Equal(t, 0, *meta.ChunkStart)
		assert.Equal(t, 3, *meta.ChunkEnd)
		assert.InDelta(t, 42, meta.Extra["size"], 0)
	})
}

func open(t *testing.T, newStore Factory) driven.VectorStore {
	t.Helper()
	s := newStore(t, Dims)
	require.NoError(t, s.Setup(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func assertCount(t *testing.T, s driven.VectorStore, want int) {
	t.Helper()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, n)
}

// Axis returns the unit vector along dimension i.
func Axis(i int) []float32 {
	v := make([]float32, Dims)
	v[i] = 1
	return v
}

// Record builds a chunk record for source whose text spans the whole chunk.
func Record(source, text string, embedding []float32) domain.StoredChunkRecord {
	meta := domain.Metadata{
		Source:   source,
		Filename: path.Base(source),
		Type:     strings.TrimPrefix(path.Ext(source), "."),
	}
	return domain.StoredChunkRecord{
		Content:   text,
		Metadata:  meta.WithChunk(domain.Chunk{Text: text, StartOffset: 0, EndOffset: len(text)}),
		Embedding: embedding,
	}
}

// Doc builds a stored document for source with one record per text, each
// embedded along the first axis.
func Doc(source string, texts ...string) domain.StoredDocument {
	doc := domain.StoredDocument{Source: source}
	for _, text := range texts {
		doc.Records = append(doc.Records, Record(source, text, Axis(0)))
	}
	return doc
}
