package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/logger"
)

// DefaultStoreTimeout bounds a single vector store call.
const DefaultStoreTimeout = 10 * time.Second

// Retriever runs similarity queries against a vector store and ranks the hits.
type Retriever struct {
	store   driven.VectorStore
	timeout time.Duration
}

// NewRetriever creates a retriever. A non-positive timeout uses DefaultStoreTimeout.
func NewRetriever(store driven.VectorStore, timeout time.Duration) *Retriever {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Retriever{store: store, timeout: timeout}
}

// Retrieve fetches the TopK nearest records to queryVec and ranks them against
// the threshold. Store failures and timeouts surface as
// domain.ErrStoreUnavailable; they are not retried.
func (r *Retriever) Retrieve(ctx context.Context, queryVec []float32, opts domain.RetrievalOptions) (*domain.Retrieval, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := domain.CheckDimensions(queryVec, r.store.Dimensions()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	hits, err := r.store.Search(ctx, queryVec, opts.TopK)
	if err != nil {
		return nil, storeError("similarity search", err)
	}

	ranked, fellBack := Rank(ToResults(hits), opts.Threshold)
	if fellBack {
		logger.Warn("no documents met the %.1f%% threshold, using the top %d unfiltered", opts.Threshold, len(ranked))
	} else {
		logger.Debug("%d of %d results met the %.1f%% threshold", len(ranked), len(hits), opts.Threshold)
	}

	return &domain.Retrieval{
		Results:   ranked,
		FellBack:  fellBack,
		Threshold: opts.Threshold,
	}, nil
}

// storeError maps a store failure to ErrStoreUnavailable unless it already
// carries a more specific domain error such as ErrCorruptRecord.
func storeError(op string, err error) error {
	switch {
	case domain.IsFatal(err), errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrCorruptRecord):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
}
