package postprocessors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/postprocessors/chunker"
	"github.com/custodia-labs/milo/internal/postprocessors/llmchunker"
)

type cannedLLM struct {
	answer string
	err    error
}

func (m *cannedLLM) Generate(context.Context, string, driven.GenerateOptions) (string, error) {
	return m.answer, m.err
}

func (m *cannedLLM) Chat(context.Context, []driven.ChatMessage, driven.ChatOptions) (string, error) {
	return m.answer, m.err
}
func (m *cannedLLM) ModelName() string          { return "canned" }
func (m *cannedLLM) Ping(context.Context) error { return nil }
func (m *cannedLLM) Close() error               { return nil }

func defaultRegistry(llm driven.LLMService) *Registry {
	r := NewRegistry()
	RegisterDefaults(r, llm, nil)
	return r
}

func TestRegisterDefaults(t *testing.T) {
	r := defaultRegistry(nil)

	assert.Equal(t, []string{chunker.Name, llmchunker.Name}, r.Names())
}

func TestBuildFixed(t *testing.T) {
	r := defaultRegistry(nil)

	s, err := r.Build("fixed", map[string]any{"chunk_size": int64(100), "overlap": float64(10)})
	require.NoError(t, err)
	assert.Equal(t, "fixed", s.Name())

	p, ok := s.(*chunker.Processor)
	require.True(t, ok)
	assert.Equal(t, domain.ChunkParams{Size: 100, Overlap: 10}, p.Params())
}

func TestBuildFixed_Defaults(t *testing.T) {
	s, err := defaultRegistry(nil).Build("fixed", nil)
	require.NoError(t, err)

	p := s.(*chunker.Processor)
	assert.Equal(t, domain.ChunkParams{Size: chunker.DefaultChunkSize, Overlap: chunker.DefaultChunkOverlap}, p.Params())
}

func TestBuildFixed_InvalidParams(t *testing.T) {
	_, err := defaultRegistry(nil).Build("fixed", map[string]any{"chunk_size": 50, "overlap": 50})

	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestBuildLLM_RequiresGenerator(t *testing.T) {
	_, err := defaultRegistry(nil).Build("llm", nil)

	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestBuildLLM_Segments(t *testing.T) {
	llm := &cannedLLM{answer: `{"chunks": ["First part.", "Second part."]}`}
	s, err := defaultRegistry(llm).Build("llm", map[string]any{"word_limit": 20, "word_overlap": 2})
	require.NoError(t, err)

	chunks, err := s.Chunk(context.Background(), "First part. Second part.")

	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "First part. ", chunks[0].Text)
	assert.Equal(t, "Second part.", chunks[1].Text)
}

func TestBuildLLM_FallsBackToFixed(t *testing.T) {
	llm := &cannedLLM{err: errors.New("model not found")}
	s, err := defaultRegistry(llm).Build("llm", map[string]any{
		"max_attempts": 1,
		"chunk_size":   10,
		"overlap":      0,
	})
	require.NoError(t, err)

	chunks, err := s.Chunk(context.Background(), "alpha beta gamma delta")

	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, 22, chunks[len(chunks)-1].EndOffset)
}

func TestBuildLLM_NoFallback(t *testing.T) {
	llm := &cannedLLM{err: errors.New("model not found")}
	s, err := defaultRegistry(llm).Build("llm", map[string]any{"max_attempts": 1, "fallback": false})
	require.NoError(t, err)

	_, err = s.Chunk(context.Background(), "alpha beta gamma delta")

	assert.ErrorIs(t, err, domain.ErrGeneration)
}
