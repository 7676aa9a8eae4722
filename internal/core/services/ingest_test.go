package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driving"
)

func newTestIngest(loader *mockLoader, embedder *letterEmbedder, store *fakeStore) *IngestService {
	svc := NewIngestService(loader, sentenceChunker{}, embedder, store, 0)
	svc.SetRunIDFunc(func() string { return "run-1" })
	return svc
}

func testDocs() []domain.Document {
	return []domain.Document{
		doc("a.txt", "Alpha one. Beta two. Gamma three."),
		doc("b.txt", "Delta four."),
	}
}

func TestIngestPath(t *testing.T) {
	store := newFakeStore()
	loader := &mockLoader{docs: testDocs()}
	svc := newTestIngest(loader, newLetterEmbedder(), store)

	report, err := svc.IngestPath(context.Background(), "/docs", driving.IngestOptions{})

	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 4, report.Chunks)
	assert.Empty(t, report.Failures)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
	assert.Equal(t, 2, store.inserts, "one store call per document")
	assert.Len(t, store.records, 4)
	assert.Equal(t, 0, store.indexed)
}

func TestIngestPath_RecordsCarryChunkMetadata(t *testing.T) {
	store := newFakeStore()
	svc := newTestIngest(&mockLoader{docs: testDocs()[:1]}, newLetterEmbedder(), store)

	_, err := svc.IngestPath(context.Background(), "/docs", driving.IngestOptions{})
	require.NoError(t, err)

	require.Len(t, store.records, 3)
	second := store.records[1]
	assert.Equal(t, "Beta two. ", second.Content)
	assert.Equal(t, "a.txt", second.Metadata.Source)
	require.NotNil(t, second.Metadata.ChunkStart)
	require.NotNil(t, second.Metadata.ChunkEnd)
	assert.Equal(t, 11, *second.Metadata.ChunkStart)
	assert.Equal(t, 21, *second.Metadata.ChunkEnd)

	var norm float64
	for _, x := range second.Embedding {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1, math.Sqrt(norm), 1e-5, "embeddings are stored normalised")
}

func TestIngestPath_SkipsLoadFailures(t *testing.T) {
	store := newFakeStore()
	loader := &mockLoader{
		docs:     testDocs()[1:],
		failures: []domain.LoadFailure{{Path: "broken.pdf", Err: errors.New("bad xref")}},
	}
	svc := newTestIngest(loader, newLetterEmbedder(), store)

	report, err := svc.IngestPath(context.Background(), "/docs", driving.IngestOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "broken.pdf", report.Failures[0].Path)
	assert.ErrorIs(t, report.Failures[0], domain.ErrLoad)
}

func TestIngestPath_LoaderError(t *testing.T) {
	svc := newTestIngest(&mockLoader{err: domain.ErrNotFound}, newLetterEmbedder(), newFakeStore())

	_, err := svc.IngestPath(context.Background(), "/missing", driving.IngestOptions{})

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestPath_ClearAndIndex(t *testing.T) {
	store := newFakeStore()
	svc := newTestIngest(&mockLoader{docs: testDocs()}, newLetterEmbedder(), store)

	_, err := svc.IngestPath(context.Background(), "/docs", driving.IngestOptions{})
	require.NoError(t, err)
	require.Len(t, store.records, 4)

	report, err := svc.IngestPath(context.Background(), "/docs", driving.IngestOptions{Clear: true, BuildIndex: true})

	require.NoError(t, err)
	assert.Equal(t, 4, report.Chunks)
	assert.Equal(t, 1, store.cleared)
	assert.Len(t, store.records, 4, "clear then reload leaves no duplicates")
	assert.Equal(t, 1, store.indexed)
}

func TestIngestPath_WithoutClearIsAdditive(t *testing.T) {
	store := newFakeStore()
	svc := newTestIngest(&mockLoader{docs: testDocs()}, newLetterEmbedder(), store)

	for range 2 {
		_, err := svc.IngestPath(context.Background(), "/docs", driving.IngestOptions{})
		require.NoError(t, err)
	}

	assert.Len(t, store.records, 8)
	assert.Equal(t, 0, store.cleared)
}

func TestIngestPath_NoIndexWhenNothingStored(t *testing.T) {
	store := newFakeStore()
	svc := newTestIngest(&mockLoader{}, newLetterEmbedder(), store)

	report, err := svc.IngestPath(context.Background(), "/empty", driving.IngestOptions{BuildIndex: true})

	require.NoError(t, err)
	assert.Zero(t, report.Chunks)
	assert.Equal(t, 0, store.indexed)
}

func TestIngestPath_StoreFailureAborts(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("connection reset")
	svc := newTestIngest(&mockLoader{docs: testDocs()}, newLetterEmbedder(), store)

	report, err := svc.IngestPath(context.Background(), "/docs", driving.IngestOptions{})

	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "a.txt")
	assert.Equal(t, 0, report.Documents)
	assert.Equal(t, 1, store.inserts, "run stops at the first failing document")
}

func TestIngestPath_ChunkerFailureAborts(t *testing.T) {
	store := newFakeStore()
	cause := errors.New("segmentation failed")
	svc := NewIngestService(&mockLoader{docs: testDocs()}, sentenceChunker{err: cause}, newLetterEmbedder(), store, 0)

	_, err := svc.IngestPath(context.Background(), "/docs", driving.IngestOptions{})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 0, store.inserts)
}

func TestIngestPath_CancelledContext(t *testing.T) {
	store := newFakeStore()
	svc := newTestIngest(&mockLoader{docs: testDocs()}, newLetterEmbedder(), store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.IngestPath(ctx, "/docs", driving.IngestOptions{})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.inserts)
}

func TestIngestDocument_Batches(t *testing.T) {
	embedder := newLetterEmbedder()
	store := newFakeStore()
	svc := newTestIngest(&mockLoader{}, embedder, store)
	svc.SetBatchSize(2)

	n, err := svc.IngestDocument(context.Background(), doc("a.txt", "One. Two. Three. Four. Five."))

	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 3, embedder.calls)
	assert.Equal(t, []string{"One. ", "Two. ", "Three. ", "Four. ", "Five."}, embedder.inputs)
}

func TestIngestDocument_EmptyContent(t *testing.T) {
	store := newFakeStore()
	svc := newTestIngest(&mockLoader{}, newLetterEmbedder(), store)

	n, err := svc.IngestDocument(context.Background(), doc("empty.txt", ""))

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 0, store.inserts)
}

func TestIngestDocument_EmbeddingFailures(t *testing.T) {
	t.Run("short batch", func(t *testing.T) {
		embedder := newLetterEmbedder()
		embedder.short = true
		store := newFakeStore()
		svc := newTestIngest(&mockLoader{}, embedder, store)

		_, err := svc.IngestDocument(context.Background(), testDocs()[0])

		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
		assert.Equal(t, 0, store.inserts)
	})

	t.Run("service error", func(t *testing.T) {
		embedder := newLetterEmbedder()
		embedder.batchErr = errors.New("503")
		svc := newTestIngest(&mockLoader{}, embedder, newFakeStore())

		_, err := svc.IngestDocument(context.Background(), testDocs()[0])

		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		embedder := newLetterEmbedder()
		embedder.dims = 4
		store := newFakeStore()
		svc := newTestIngest(&mockLoader{}, embedder, store)

		_, err := svc.IngestDocument(context.Background(), testDocs()[0])

		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
		assert.True(t, domain.IsFatal(err))
		assert.Equal(t, 0, store.inserts)
	})
}

func TestIngestFile(t *testing.T) {
	store := newFakeStore()
	svc := newTestIngest(&mockLoader{docs: testDocs()}, newLetterEmbedder(), store)

	n, err := svc.IngestFile(context.Background(), "b.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.IngestFile(context.Background(), "nope.txt")
	assert.ErrorIs(t, err, domain.ErrLoad)
}

func TestIngestFile_ReplacesEarlierRecords(t *testing.T) {
	store := newFakeStore()
	loader := &mockLoader{docs: testDocs()}
	svc := newTestIngest(loader, newLetterEmbedder(), store)
	_, err := svc.IngestPath(context.Background(), "/docs", driving.IngestOptions{})
	require.NoError(t, err)
	require.Len(t, store.records, 4)

	loader.docs[0] = doc("a.txt", "Alpha rewritten.")
	n, err := svc.IngestFile(context.Background(), "a.txt")

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, store.records, 2)
	var contents []string
	for _, r := range store.records {
		contents = append(contents, r.Content)
	}
	assert.ElementsMatch(t, []string{"Delta four.", "Alpha rewritten."}, contents)
}

func TestIngestFile_EmptiedFileRemovesRecords(t *testing.T) {
	store := newFakeStore()
	loader := &mockLoader{docs: testDocs()}
	svc := newTestIngest(loader, newLetterEmbedder(), store)
	_, err := svc.IngestPath(context.Background(), "/docs", driving.IngestOptions{})
	require.NoError(t, err)

	loader.docs[1] = doc("b.txt", "")
	n, err := svc.IngestFile(context.Background(), "b.txt")

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, store.records, 3)
}

func TestClearAndBuildIndexErrors(t *testing.T) {
	store := newFakeStore()
	store.clearErr = errors.New("timeout")
	store.indexErr = domain.ErrConfiguration
	svc := newTestIngest(&mockLoader{}, newLetterEmbedder(), store)

	err := svc.Clear(context.Background())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	err = svc.BuildIndex(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
}
