package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

const testDims = 8

// letterEmbedder embeds text as a histogram of letter classes, so equal
// texts get equal vectors and similar texts get close ones.
type letterEmbedder struct {
	dims     int
	err      error
	short    bool
	calls    int
	inputs   []string
	batchErr error
}

func newLetterEmbedder() *letterEmbedder {
	return &letterEmbedder{dims: testDims}
}

func (m *letterEmbedder) vector(text string) []float32 {
	v := make([]float32, m.dims)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[int(r-'a')%m.dims]++
		}
	}
	v[0] += 0.5
	return v
}

func (m *letterEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.calls++
	m.inputs = append(m.inputs, text)
	if m.err != nil {
		return nil, m.err
	}
	return m.vector(text), nil
}

func (m *letterEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	m.inputs = append(m.inputs, texts...)
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	if m.short && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (m *letterEmbedder) Dimensions() int          { return m.dims }
func (m *letterEmbedder) ModelName() string        { return "letters" }
func (m *letterEmbedder) Ping(context.Context) error { return nil }
func (m *letterEmbedder) Close() error             { return nil }

// fakeStore is an exact-search store with injectable failures.
type fakeStore struct {
	mu        sync.Mutex
	dims      int
	records   []domain.StoredChunkRecord
	nextID    int64
	hits      []driven.VectorHit
	searchErr error
	insertErr error
	clearErr  error
	indexErr  error
	inserts   int
	cleared   int
	indexed   int
	block     bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{dims: testDims}
}

func (s *fakeStore) Setup(context.Context) error { return nil }

func (s *fakeStore) InsertDocument(ctx context.Context, doc domain.StoredDocument) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	for _, r := range doc.Records {
		if err := domain.CheckDimensions(r.Embedding, s.dims); err != nil {
			return nil, err
		}
	}
	if doc.Replace {
		kept := s.records[:0]
		for _, r := range s.records {
			if r.Metadata.Source != doc.Source {
				kept = append(kept, r)
			}
		}
		s.records = kept
	}
	ids := make([]int64, len(doc.Records))
	for i, r := range doc.Records {
		s.nextID++
		r.ID = s.nextID
		ids[i] = r.ID
		s.records = append(s.records, r)
	}
	return ids, nil
}

func (s *fakeStore) Search(ctx context.Context, queryVec []float32, k int) ([]driven.VectorHit, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	if s.hits != nil {
		return s.hits, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	hits := make([]driven.VectorHit, len(s.records))
	for i, r := range s.records {
		hits[i] = driven.VectorHit{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: r.Metadata,
			Distance: domain.CosineDistance(queryVec, r.Embedding),
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *fakeStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared++
	if s.clearErr != nil {
		return s.clearErr
	}
	s.records = nil
	return nil
}

func (s *fakeStore) CreateIndex(context.Context) error {
	s.indexed++
	return s.indexErr
}

func (s *fakeStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *fakeStore) Dimensions() int { return s.dims }
func (s *fakeStore) Close() error    { return nil }

// mockLLM records prompts and returns a canned answer. Queued answers are
// returned first, one per Generate call.
type mockLLM struct {
	answer   string
	answers  []string
	err      error
	prompts  []string
	schemas  []json.RawMessage
	messages [][]driven.ChatMessage
}

func (m *mockLLM) Generate(_ context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	m.prompts = append(m.prompts, prompt)
	m.schemas = append(m.schemas, opts.Schema)
	if len(m.answers) > 0 {
		next := m.answers[0]
		m.answers = m.answers[1:]
		return next, m.err
	}
	return m.answer, m.err
}

func (m *mockLLM) Chat(_ context.Context, messages []driven.ChatMessage, _ driven.ChatOptions) (string, error) {
	m.messages = append(m.messages, messages)
	return m.answer, m.err
}

func (m *mockLLM) ModelName() string          { return "mock-llm" }
func (m *mockLLM) Ping(context.Context) error { return nil }
func (m *mockLLM) Close() error               { return nil }

// mockLoader serves in-memory documents keyed by path.
type mockLoader struct {
	docs     []domain.Document
	failures []domain.LoadFailure
	err      error
}

func (m *mockLoader) Load(context.Context, string) ([]domain.Document, []domain.LoadFailure, error) {
	return m.docs, m.failures, m.err
}

func (m *mockLoader) LoadFile(_ context.Context, path string) (domain.Document, error) {
	for _, d := range m.docs {
		if d.Metadata.Source == path {
			return d, nil
		}
	}
	return domain.Document{}, domain.LoadFailure{Path: path, Err: errors.New("no such file")}
}

func (m *mockLoader) Supports(string) bool { return true }

// sentenceChunker splits on ". " so tests can reason about chunk counts.
type sentenceChunker struct {
	err error
}

func (c sentenceChunker) Name() string { return "sentences" }

func (c sentenceChunker) Chunk(_ context.Context, text string) ([]domain.Chunk, error) {
	if c.err != nil {
		return nil, c.err
	}
	var chunks []domain.Chunk
	start := 0
	for start < len(text) {
		end := strings.Index(text[start:], ". ")
		if end < 0 {
			end = len(text)
		} else {
			end = start + end + 2
		}
		chunks = append(chunks, domain.Chunk{Text: text[start:end], StartOffset: start, EndOffset: end})
		start = end
	}
	return chunks, nil
}

func doc(source, content string) domain.Document {
	return domain.Document{
		Content: content,
		Metadata: domain.Metadata{
			Source:   source,
			Filename: source,
			Type:     "txt",
		},
	}
}
