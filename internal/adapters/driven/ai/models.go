package ai

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

// listTimeout bounds a model listing.
const listTimeout = 15 * time.Second

// ListLLMModels returns the sorted models offered by the configured
// generation provider.
func ListLLMModels(ctx context.Context, settings domain.LLMSettings) ([]string, error) {
	svc, err := CreateLLMService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrLLMUnavailable, err)
	}
	if svc == nil {
		return nil, fmt.Errorf("%w: no LLM provider configured", domain.ErrLLMUnavailable)
	}
	defer svc.Close()
	return listModels(ctx, svc, settings.Provider)
}

// ListEmbeddingModels returns the sorted models offered by the configured
// embedding provider.
func ListEmbeddingModels(ctx context.Context, settings domain.EmbeddingSettings) ([]string, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if svc == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured", domain.ErrEmbeddingUnavailable)
	}
	defer svc.Close()
	return listModels(ctx, svc, settings.Provider)
}

func listModels(ctx context.Context, svc any, provider domain.AIProvider) ([]string, error) {
	lister, ok := svc.(driven.ModelLister)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot list models", domain.ErrUnsupportedType, provider)
	}

	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	names, err := lister.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}
