// Package llmchunker provides a chunking strategy that asks a generation
// model for topically coherent segments and validates what comes back.
package llmchunker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/logger"
)

// Ensure Processor implements the interface.
var _ driven.ChunkStrategy = (*Processor)(nil)

// Default configuration values.
const (
	DefaultWordLimit   = 500
	DefaultWordOverlap = 50
	DefaultMaxAttempts = 3
)

// Name is the strategy name used in configuration.
const Name = "llm"

// chunkSchema constrains generator output to {"chunks": [string, ...]}.
var chunkSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "chunks": {"type": "array", "items": {"type": "string"}, "minItems": 1}
  },
  "required": ["chunks"],
  "additionalProperties": false
}`)

// errInvalidSegments marks generator output that parsed but broke the chunk contract.
var errInvalidSegments = errors.New("invalid segments")

// response is the strict shape of generator output.
type response struct {
	Chunks []string `json:"chunks"`
}

// Processor delegates boundary decisions to an LLM.
// The generator is untrusted: every response is decoded strictly and
// checked for verbatim segments, bounded size and full coverage.
type Processor struct {
	llm         driven.LLMService
	prompts     driven.PromptStore
	fallback    driven.ChunkStrategy
	wordLimit   int
	overlap     int
	maxChars    int
	maxAttempts int
}

// Option configures the processor.
type Option func(*Processor)

// WithWordLimit sets the maximum number of words per segment.
func WithWordLimit(n int) Option {
	return func(p *Processor) {
		p.wordLimit = n
	}
}

// WithOverlap sets the number of words consecutive segments may share.
func WithOverlap(n int) Option {
	return func(p *Processor) {
		p.overlap = n
	}
}

// WithMaxChars bounds segment length in bytes. Zero disables the bound.
func WithMaxChars(n int) Option {
	return func(p *Processor) {
		p.maxChars = n
	}
}

// WithMaxAttempts sets how many times the generator is asked before giving up.
func WithMaxAttempts(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithFallback sets the strategy used when every attempt fails.
func WithFallback(s driven.ChunkStrategy) Option {
	return func(p *Processor) {
		p.fallback = s
	}
}

// WithPromptStore sets where the segmentation prompt is loaded from.
func WithPromptStore(s driven.PromptStore) Option {
	return func(p *Processor) {
		p.prompts = s
	}
}

// New creates an LLM chunker.
func New(llm driven.LLMService, opts ...Option) (*Processor, error) {
	if llm == nil {
		return nil, fmt.Errorf("%w: llm chunking requires a generation service", domain.ErrLLMUnavailable)
	}
	p := &Processor{
		llm:         llm,
		wordLimit:   DefaultWordLimit,
		overlap:     DefaultWordOverlap,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := (domain.ChunkParams{Size: p.wordLimit, Overlap: p.overlap}).Validate(); err != nil {
		return nil, err
	}
	if p.maxChars < 0 {
		return nil, fmt.Errorf("%w: max chars must not be negative", domain.ErrConfiguration)
	}
	return p, nil
}

// Name returns the strategy name.
func (p *Processor) Name() string {
	return Name
}

// SetPromptStore implements driven.PromptStoreAware.
func (p *Processor) SetPromptStore(store driven.PromptStore) {
	p.prompts = store
}

// Chunk asks the generator to segment text, retrying on malformed or
// invalid output. When all attempts fail the fallback strategy is used if
// one is configured, otherwise domain.ErrGeneration is returned.
func (p *Processor) Chunk(ctx context.Context, text string) ([]domain.Chunk, error) {
	if text == "" {
		return nil, nil
	}
	if strings.TrimSpace(text) == "" {
		return []domain.Chunk{{Text: text, StartOffset: 0, EndOffset: len(text)}}, nil
	}

	prompt := p.prompt(text)

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		raw, err := p.llm.Generate(ctx, prompt, driven.GenerateOptions{Schema: chunkSchema})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			logger.Warn("llm chunking attempt %d/%d: generate: %v", attempt, p.maxAttempts, err)
			continue
		}

		segments, err := decode(raw)
		if err == nil {
			var chunks []domain.Chunk
			chunks, err = p.place(text, segments)
			if err == nil {
				logger.Debug("llm chunking produced %d chunks on attempt %d", len(chunks), attempt)
				return chunks, nil
			}
		}
		lastErr = err
		logger.Warn("llm chunking attempt %d/%d: %v", attempt, p.maxAttempts, err)
	}

	if p.fallback != nil {
		logger.Warn("llm chunking failed, using %s strategy: %v", p.fallback.Name(), lastErr)
		return p.fallback.Chunk(ctx, text)
	}
	return nil, fmt.Errorf("%w: llm chunking: %w", domain.ErrGeneration, lastErr)
}

func (p *Processor) prompt(text string) string {
	tmpl, _ := driven.DefaultPrompt(driven.PromptLLMChunking)
	if p.prompts != nil {
		if custom, err := p.prompts.Load(driven.PromptLLMChunking); err == nil && custom != "" {
			tmpl = custom
		}
	}
	return driven.RenderPrompt(tmpl, map[string]string{
		"word_limit": strconv.Itoa(p.wordLimit),
		"overlap":    strconv.Itoa(p.overlap),
		"text":       text,
	})
}

// decode parses generator output strictly: exactly one JSON object with a
// non-empty "chunks" array of strings and no other fields.
func decode(raw string) ([]string, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()

	var resp response
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode response: trailing data after JSON object")
	}
	if len(resp.Chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks returned", errInvalidSegments)
	}
	return resp.Chunks, nil
}

// place locates each segment verbatim in text and converts the segments to
// offset chunks. Whitespace between or around segments is absorbed into the
// neighbouring chunk; any other uncovered content rejects the response.
func (p *Processor) place(text string, segments []string) ([]domain.Chunk, error) {
	chunks := make([]domain.Chunk, 0, len(segments))
	from := 0
	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil, fmt.Errorf("%w: segment %d is empty", errInvalidSegments, i)
		}
		if words := len(strings.Fields(seg)); words > p.wordLimit {
			return nil, fmt.Errorf("%w: segment %d has %d words, limit %d", errInvalidSegments, i, words, p.wordLimit)
		}

		idx := strings.Index(text[from:], seg)
		if idx < 0 {
			return nil, fmt.Errorf("%w: segment %d is not a verbatim excerpt in order", errInvalidSegments, i)
		}
		start := from + idx
		end := start + len(seg)

		if n := len(chunks); n > 0 {
			prev := &chunks[n-1]
			if end <= prev.EndOffset {
				return nil, fmt.Errorf("%w: segment %d adds no new content", errInvalidSegments, i)
			}
			if start > prev.EndOffset {
				if !isBlank(text[prev.EndOffset:start]) {
					return nil, fmt.Errorf("%w: content between segments %d and %d is missing", errInvalidSegments, i-1, i)
				}
				prev.EndOffset = start
			}
		} else if !isBlank(text[:start]) {
			return nil, fmt.Errorf("%w: content before the first segment is missing", errInvalidSegments)
		}

		chunks = append(chunks, domain.Chunk{StartOffset: start, EndOffset: end})
		from = start + 1
	}

	last := &chunks[len(chunks)-1]
	if !isBlank(text[last.EndOffset:]) {
		return nil, fmt.Errorf("%w: content after the last segment is missing", errInvalidSegments)
	}
	last.EndOffset = len(text)
	chunks[0].StartOffset = 0

	for i := range chunks {
		c := &chunks[i]
		c.Text = text[c.StartOffset:c.EndOffset]
		if p.maxChars > 0 && c.Len() > p.maxChars {
			return nil, fmt.Errorf("%w: segment %d is %d bytes, limit %d", errInvalidSegments, i, c.Len(), p.maxChars)
		}
	}
	return chunks, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
