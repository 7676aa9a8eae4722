package driven

import (
	"context"

	"github.com/custodia-labs/milo/internal/core/domain"
)

// DocumentLoader reads files into documents.
type DocumentLoader interface {
	// Load reads every supported file under path (a file or a directory).
	// Files that cannot be read are returned as failures rather than
	// aborting the walk.
	Load(ctx context.Context, path string) ([]domain.Document, []domain.LoadFailure, error)

	// LoadFile reads a single file.
	LoadFile(ctx context.Context, path string) (domain.Document, error)

	// Supports reports whether the loader handles the file's extension.
	Supports(path string) bool
}
