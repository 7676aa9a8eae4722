package llmchunker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

// scriptedLLM returns its responses in order, then repeats the last one.
type scriptedLLM struct {
	responses []string
	errs      []error
	calls     int
	prompts   []string
	opts      []driven.GenerateOptions
}

func (m *scriptedLLM) Generate(_ context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	i := min(m.calls, len(m.responses)-1)
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.opts = append(m.opts, opts)
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	return m.responses[i], err
}

func (m *scriptedLLM) Chat(context.Context, []driven.ChatMessage, driven.ChatOptions) (string, error) {
	return "", nil
}
func (m *scriptedLLM) ModelName() string          { return "scripted" }
func (m *scriptedLLM) Ping(context.Context) error { return nil }
func (m *scriptedLLM) Close() error               { return nil }

type stubStrategy struct{ called bool }

func (s *stubStrategy) Name() string { return "stub" }
func (s *stubStrategy) Chunk(_ context.Context, text string) ([]domain.Chunk, error) {
	s.called = true
	return []domain.Chunk{{Text: text, StartOffset: 0, EndOffset: len(text)}}, nil
}

type staticPrompts map[string]string

func (s staticPrompts) Load(name string) (string, error) {
	if p, ok := s[name]; ok {
		return p, nil
	}
	return "", errors.New("missing")
}
func (s staticPrompts) Reload() {}

const doc = "Billing is monthly. Invoices are sent by email.\n\nSupport is open on weekdays. Call the hotline for urgent issues."

func TestNew(t *testing.T) {
	t.Run("requires llm", func(t *testing.T) {
		_, err := New(nil)
		assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
	})

	t.Run("rejects overlap not below word limit", func(t *testing.T) {
		_, err := New(&scriptedLLM{responses: []string{""}}, WithWordLimit(50), WithOverlap(50))
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})

	t.Run("defaults", func(t *testing.T) {
		p, err := New(&scriptedLLM{responses: []string{""}})
		require.NoError(t, err)
		assert.Equal(t, "llm", p.Name())
		assert.Equal(t, DefaultWordLimit, p.wordLimit)
		assert.Equal(t, DefaultWordOverlap, p.overlap)
		assert.Equal(t, DefaultMaxAttempts, p.maxAttempts)
	})
}

func TestChunk_EmptyText(t *testing.T) {
	llm := &scriptedLLM{responses: []string{""}}
	p, err := New(llm)
	require.NoError(t, err)

	chunks, err := p.Chunk(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Zero(t, llm.calls)
}

func TestChunk_ValidResponse(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"chunks": ["Billing is monthly. Invoices are sent by email.", "Support is open on weekdays. Call the hotline for urgent issues."]}`,
	}}
	p, err := New(llm, WithWordLimit(20), WithOverlap(2))
	require.NoError(t, err)

	chunks, err := p.Chunk(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].StartOffset)
	assert.Equal(t, "Billing is monthly. Invoices are sent by email.\n\n", chunks[0].Text)
	assert.Equal(t, chunks[0].EndOffset, chunks[1].StartOffset)
	assert.Equal(t, len(doc), chunks[1].EndOffset)
	for _, c := range chunks {
		assert.Equal(t, doc[c.StartOffset:c.EndOffset], c.Text)
	}

	assert.Equal(t, 1, llm.calls)
	assert.JSONEq(t, string(chunkSchema), string(llm.opts[0].Schema))
	assert.Contains(t, llm.prompts[0], "20 words")
	assert.Contains(t, llm.prompts[0], doc)
}

func TestChunk_OverlappingSegments(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"chunks": ["Billing is monthly. Invoices are sent by email.", "sent by email.\n\nSupport is open on weekdays. Call the hotline for urgent issues."]}`,
	}}
	p, err := New(llm, WithWordLimit(20), WithOverlap(5))
	require.NoError(t, err)

	chunks, err := p.Chunk(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Less(t, chunks[1].StartOffset, chunks[0].EndOffset)
	assert.Equal(t, len(doc), chunks[1].EndOffset)
}

func TestChunk_RetriesOnMalformedOutput(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`not json at all`,
		`{"chunks": ["Billing"], "notes": "extra field"}`,
		`{"chunks": ["` + strings.ReplaceAll(doc, "\n", `\n`) + `"]}`,
	}}
	p, err := New(llm, WithWordLimit(50), WithOverlap(5))
	require.NoError(t, err)

	chunks, err := p.Chunk(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 3, llm.calls)
	require.Len(t, chunks, 1)
	assert.Equal(t, doc, chunks[0].Text)
}

func TestChunk_RejectsInvalidSegments(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"paraphrased", `{"chunks": ["Billing happens every month.", "Support is open on weekdays. Call the hotline for urgent issues."]}`},
		{"missing content", `{"chunks": ["Billing is monthly."]}`},
		{"out of order", `{"chunks": ["Support is open on weekdays. Call the hotline for urgent issues.", "Billing is monthly. Invoices are sent by email."]}`},
		{"too many words", `{"chunks": ["Billing is monthly. Invoices are sent by email.", "Support is open on weekdays. Call the hotline for urgent issues."]}`},
		{"empty list", `{"chunks": []}`},
		{"trailing data", `{"chunks": ["x"]} {"chunks": ["y"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &scriptedLLM{responses: []string{tt.response}}
			limit := 20
			if tt.name == "too many words" {
				limit = 8
			}
			p, err := New(llm, WithWordLimit(limit), WithOverlap(1), WithMaxAttempts(2))
			require.NoError(t, err)

			_, err = p.Chunk(context.Background(), doc)
			assert.ErrorIs(t, err, domain.ErrGeneration)
			assert.Equal(t, 2, llm.calls)
		})
	}
}

func TestChunk_MaxChars(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"chunks": ["Billing is monthly. Invoices are sent by email.", "Support is open on weekdays. Call the hotline for urgent issues."]}`,
	}}
	p, err := New(llm, WithWordLimit(50), WithOverlap(1), WithMaxChars(30), WithMaxAttempts(1))
	require.NoError(t, err)

	_, err = p.Chunk(context.Background(), doc)
	assert.ErrorIs(t, err, domain.ErrGeneration)
}

func TestChunk_FallsBackAfterFailures(t *testing.T) {
	llm := &scriptedLLM{
		responses: []string{"", ""},
		errs:      []error{errors.New("connection refused"), errors.New("connection refused")},
	}
	fallback := &stubStrategy{}
	p, err := New(llm, WithMaxAttempts(2), WithFallback(fallback))
	require.NoError(t, err)

	chunks, err := p.Chunk(context.Background(), doc)
	require.NoError(t, err)
	assert.True(t, fallback.called)
	assert.Len(t, chunks, 1)
	assert.Equal(t, 2, llm.calls)
}

func TestChunk_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := &scriptedLLM{responses: []string{""}, errs: []error{context.Canceled}}
	p, err := New(llm, WithFallback(&stubStrategy{}))
	require.NoError(t, err)

	_, err = p.Chunk(ctx, doc)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, llm.calls)
}

func TestChunk_UsesCustomPrompt(t *testing.T) {
	llm := &scriptedLLM{responses: []string{`{"chunks": ["only words here"]}`}}
	p, err := New(llm, WithPromptStore(staticPrompts{
		driven.PromptLLMChunking: "limit={{word_limit}} overlap={{overlap}} text={{text}}",
	}))
	require.NoError(t, err)

	_, err = p.Chunk(context.Background(), "only words here")
	require.NoError(t, err)
	assert.Equal(t, "limit=500 overlap=50 text=only words here", llm.prompts[0])
}

func TestChunk_WhitespaceOnly(t *testing.T) {
	llm := &scriptedLLM{responses: []string{""}}
	p, err := New(llm)
	require.NoError(t, err)

	chunks, err := p.Chunk(context.Background(), "  \n ")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 4, chunks[0].EndOffset)
	assert.Zero(t, llm.calls)
}
