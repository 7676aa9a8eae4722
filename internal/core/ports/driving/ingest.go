package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/milo/internal/core/domain"
)

// IngestService loads documents, chunks and embeds them, and persists the
// resulting records.
type IngestService interface {
	// IngestPath ingests every supported file under path.
	// Unreadable files are skipped and reported; store and embedding
	// failures abort the run.
	IngestPath(ctx context.Context, path string, opts IngestOptions) (*IngestReport, error)

	// IngestFile loads and ingests a single file, replacing any records
	// previously stored for it.
	IngestFile(ctx context.Context, path string) (int, error)

	// IngestDocument ingests a single loaded document as one unit of work
	// and returns the number of chunk records stored.
	IngestDocument(ctx context.Context, doc domain.Document) (int, error)

	// Clear removes every stored record.
	Clear(ctx context.Context) error

	// BuildIndex creates the approximate similarity index.
	BuildIndex(ctx context.Context) error
}

// IngestOptions configures an ingest run.
type IngestOptions struct {
	// Clear deletes all stored records before loading.
	Clear bool

	// BuildIndex creates the similarity index once loading completes.
	BuildIndex bool
}

// IngestReport summarises an ingest run.
type IngestReport struct {
	RunID      string
	Documents  int
	Chunks     int
	Failures   []domain.LoadFailure
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the run took.
func (r *IngestReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
