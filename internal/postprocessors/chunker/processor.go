// Package chunker provides the boundary-aware fixed-size chunking strategy.
package chunker

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.ChunkStrategy = (*Processor)(nil)

// DefaultChunkSize is the default number of bytes per chunk.
const DefaultChunkSize = 500

// DefaultChunkOverlap is the default number of overlapping bytes.
const DefaultChunkOverlap = 50

// Name is the strategy name used in configuration.
const Name = "fixed"

// whitespace is the set of characters a chunk may be cut after.
const whitespace = " \t\n\r\f\v"

// Processor splits text into fixed-size chunks that prefer to end on a
// sentence or word boundary.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the maximum chunk size in bytes.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		p.chunkSize = size
	}
}

// WithOverlap sets the overlap between consecutive chunks in bytes.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		p.overlap = overlap
	}
}

// New creates a chunker. It returns domain.ErrConfiguration when the
// resulting parameters do not satisfy 0 <= overlap < size.
func New(opts ...Option) (*Processor, error) {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := validate(p.Params()); err != nil {
		return nil, err
	}
	return p, nil
}

// MinChunkSize is the smallest size that always fits a whole UTF-8
// character, so a hard cut never splits one.
const MinChunkSize = utf8.UTFMax

func validate(params domain.ChunkParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if params.Size < MinChunkSize {
		return fmt.Errorf("%w: chunk size must be at least %d bytes, got %d",
			domain.ErrConfiguration, MinChunkSize, params.Size)
	}
	return nil
}

// Name returns the strategy name.
func (p *Processor) Name() string {
	return Name
}

// Params returns the configured size and overlap.
func (p *Processor) Params() domain.ChunkParams {
	return domain.ChunkParams{Size: p.chunkSize, Overlap: p.overlap}
}

// Chunk splits text into chunks.
func (p *Processor) Chunk(_ context.Context, text string) ([]domain.Chunk, error) {
	return Split(text, p.Params())
}

// Split walks text from offset 0 emitting chunks of at most params.Size
// bytes. A full-size window that does not reach the end of the text is
// shortened to end after its last period when that period lies past the
// window midpoint, otherwise after its last whitespace, otherwise it is cut
// at the size limit. The next window starts params.Overlap bytes before the
// previous end, or at the end itself if a boundary cut left no room for
// overlap.
func Split(text string, params domain.ChunkParams) ([]domain.Chunk, error) {
	if err := validate(params); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}

	size, overlap := params.Size, params.Overlap
	n := len(text)
	chunks := make([]domain.Chunk, 0, n/(size-overlap)+1)

	start := 0
	for {
		end := min(start+size, n)

		if end < n && end-start == size {
			window := text[start:end]
			if lastPeriod := strings.LastIndexByte(window, '.'); lastPeriod > size/2 {
				end = start + lastPeriod + 1
			} else if lastSpace := strings.LastIndexAny(window, whitespace); lastSpace != -1 {
				end = start + lastSpace + 1
			} else {
				end = runeFloor(text, start, end)
			}
		}

		chunks = append(chunks, domain.Chunk{
			Text:        text[start:end],
			StartOffset: start,
			EndOffset:   end,
		})

		if end == n {
			return chunks, nil
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = runeCeil(text, next, end)
	}
}

// runeFloor moves a hard cut back to the nearest rune boundary, keeping at
// least one byte in the chunk.
func runeFloor(text string, start, end int) int {
	for end > start+1 && !utf8.RuneStart(text[end]) {
		end--
	}
	return end
}

// runeCeil moves a window start forward to the nearest rune boundary
// without passing limit.
func runeCeil(text string, i, limit int) int {
	for i < limit && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}
