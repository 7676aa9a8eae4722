package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/core/ports/driving"
	"github.com/custodia-labs/milo/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// DefaultEmbedBatchSize is the number of chunks sent per embedding call.
const DefaultEmbedBatchSize = 32

// IngestService turns files into stored chunk records. Documents are
// processed sequentially; each document is one unit of work in the store.
type IngestService struct {
	loader    driven.DocumentLoader
	chunker   driven.ChunkStrategy
	embedder  driven.EmbeddingService
	store     driven.VectorStore
	timeout   time.Duration
	batchSize int
	newRunID  func() string
}

// NewIngestService creates an ingest service. A non-positive storeTimeout
// uses DefaultStoreTimeout.
func NewIngestService(
	loader driven.DocumentLoader,
	chunker driven.ChunkStrategy,
	embedder driven.EmbeddingService,
	store driven.VectorStore,
	storeTimeout time.Duration,
) *IngestService {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &IngestService{
		loader:    loader,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		timeout:   storeTimeout,
		batchSize: DefaultEmbedBatchSize,
		newRunID: func() string {
			return strconv.FormatInt(time.Now().UnixNano(), 36)
		},
	}
}

// SetBatchSize sets how many chunks are embedded per call.
func (s *IngestService) SetBatchSize(n int) {
	if n > 0 {
		s.batchSize = n
	}
}

// SetRunIDFunc sets the generator for ingest run identifiers.
func (s *IngestService) SetRunIDFunc(fn func() string) {
	if fn != nil {
		s.newRunID = fn
	}
}

// IngestPath loads every supported file under path and ingests it.
// Load failures are logged, skipped and reported. Chunking, embedding and
// store failures abort the run; the partial report is returned with the error.
func (s *IngestService) IngestPath(ctx context.Context, path string, opts driving.IngestOptions) (*driving.IngestReport, error) {
	report := &driving.IngestReport{
		RunID:     s.newRunID(),
		StartedAt: time.Now(),
	}
	log := logger.With("run_id", report.RunID)
	defer func() { report.FinishedAt = time.Now() }()

	logger.Section("Ingest")
	logger.Info("Ingesting %s (run %s, strategy %s)", path, report.RunID, s.chunker.Name())

	if opts.Clear {
		if err := s.Clear(ctx); err != nil {
			return report, err
		}
	}

	docs, failures, err := s.loader.Load(ctx, path)
	if err != nil {
		return report, fmt.Errorf("load %s: %w", path, err)
	}
	for _, f := range failures {
		log.Warn("skipping file", "path", f.Path, "error", f.Err)
	}
	report.Failures = failures

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		n, err := s.IngestDocument(ctx, doc)
		if err != nil {
			return report, fmt.Errorf("ingest %s: %w", doc.Metadata.Source, err)
		}
		report.Documents++
		report.Chunks += n
	}

	if opts.BuildIndex && report.Chunks > 0 {
		if err := s.BuildIndex(ctx); err != nil {
			return report, err
		}
	}

	logger.Info("Ingested %d documents, %d chunks, %d skipped", report.Documents, report.Chunks, len(report.Failures))
	return report, nil
}

// IngestFile loads one file and ingests it, replacing the records
// previously stored for the same source.
func (s *IngestService) IngestFile(ctx context.Context, path string) (int, error) {
	doc, err := s.loader.LoadFile(ctx, path)
	if err != nil {
		return 0, err
	}
	return s.ingest(ctx, doc, true)
}

// IngestDocument chunks, embeds and stores one document atomically.
func (s *IngestService) IngestDocument(ctx context.Context, doc domain.Document) (int, error) {
	return s.ingest(ctx, doc, false)
}

func (s *IngestService) ingest(ctx context.Context, doc domain.Document, replace bool) (int, error) {
	chunks, err := s.chunker.Chunk(ctx, doc.Content)
	if err != nil {
		return 0, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 && !replace {
		logger.Debug("%s produced no chunks", doc.Metadata.Source)
		return 0, nil
	}

	vectors, err := s.embed(ctx, chunks)
	if err != nil {
		return 0, err
	}

	records := make([]domain.StoredChunkRecord, len(chunks))
	for i, c := range chunks {
		records[i] = domain.StoredChunkRecord{
			Content:   c.Text,
			Metadata:  doc.Metadata.WithChunk(c),
			Embedding: vectors[i],
		}
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.store.InsertDocument(storeCtx, domain.StoredDocument{
		Source:  doc.Metadata.Source,
		Records: records,
		Replace: replace,
	}); err != nil {
		return 0, storeError("insert", err)
	}

	logger.Debug("Stored %s as %d chunks", doc.Metadata.Source, len(records))
	return len(records), nil
}

// embed returns one normalised vector per chunk, in chunk order.
func (s *IngestService) embed(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	dims := s.store.Dimensions()
	vectors := make([][]float32, 0, len(chunks))

	for start := 0; start < len(chunks); start += s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		texts := make([]string, end-start)
		for i, c := range chunks[start:end] {
			texts[i] = c.Text
		}

		batch, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed: %w: %w", domain.ErrEmbeddingUnavailable, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embed: %w: got %d vectors for %d chunks",
				domain.ErrEmbeddingUnavailable, len(batch), len(texts))
		}

		for _, v := range batch {
			if err := domain.CheckDimensions(v, dims); err != nil {
				return nil, fmt.Errorf("embed: %w", err)
			}
			vectors = append(vectors, domain.Normalize(v))
		}
	}
	return vectors, nil
}

// Clear removes every stored record.
func (s *IngestService) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.Clear(ctx); err != nil {
		return storeError("clear", err)
	}
	logger.Info("Vector store cleared")
	return nil
}

// BuildIndex creates the approximate similarity index. Index builds can
// take much longer than regular calls, so only the caller's context applies.
func (s *IngestService) BuildIndex(ctx context.Context) error {
	if err := s.store.CreateIndex(ctx); err != nil {
		return storeError("create index", err)
	}
	logger.Info("Similarity index created")
	return nil
}
