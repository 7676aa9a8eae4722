package driven

import (
	"context"

	"github.com/custodia-labs/milo/internal/core/domain"
)

// ChunkStrategy splits document text into ordered chunks.
//
// Every strategy honours the same contract: chunks cover the whole text,
// each chunk satisfies 0 <= start < end <= len(text), text[start:end] equals
// the chunk text, and no two chunks share an identical offset range.
type ChunkStrategy interface {
	// Name returns the strategy name for logging and configuration.
	Name() string

	// Chunk splits text. Empty text yields no chunks.
	Chunk(ctx context.Context, text string) ([]domain.Chunk, error)
}
