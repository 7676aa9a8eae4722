// Package ai builds the embedding and generation gateways from settings.
package ai

import (
	"context"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/milo/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/milo/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/milo/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/milo/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/milo/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// InitResult contains the result of AI service initialisation.
type InitResult struct {
	EmbeddingService driven.EmbeddingService
	LLMService       driven.LLMService
	Warnings         []string // Non-fatal issues, such as an unreachable LLM.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.EmbeddingService != nil {
		r.EmbeddingService.Close()
	}
	if r.LLMService != nil {
		r.LLMService.Close()
	}
}

// Init creates and validates both gateways. The embedding service is
// mandatory. A failing LLM is an error only when requireLLM is set;
// otherwise it is recorded as a warning and left nil so retrieval still works.
func Init(
	ctx context.Context, emb domain.EmbeddingSettings, llm domain.LLMSettings, requireLLM bool,
) (*InitResult, error) {
	embedder, err := CreateAndValidateEmbeddingService(ctx, emb)
	if err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured", domain.ErrEmbeddingUnavailable)
	}
	result := &InitResult{EmbeddingService: embedder}

	svc, err := CreateAndValidateLLMService(ctx, llm)
	switch {
	case err != nil && requireLLM:
		result.Close()
		return nil, err
	case err != nil:
		logger.Warn("LLM disabled: %v", err)
		result.Warnings = append(result.Warnings, err.Error())
	case svc == nil && requireLLM:
		result.Close()
		return nil, fmt.Errorf("%w: no LLM provider configured", domain.ErrLLMUnavailable)
	default:
		result.LLMService = svc
	}
	return result, nil
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
// Returns nil, nil when no provider is configured.
func CreateAndValidateEmbeddingService(
	ctx context.Context, settings domain.EmbeddingSettings,
) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'milo setup' to fix", domain.ErrEmbeddingUnavailable, err)
	}
	if svc == nil {
		return nil, nil
	}

	if err := ping(ctx, svc.Ping); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w). Run 'milo setup' to fix",
			domain.ErrEmbeddingUnavailable, err)
	}
	logger.Debug("embedding service ready: %s (%d dims)", svc.ModelName(), svc.Dimensions())
	return svc, nil
}

// CreateAndValidateLLMService creates an LLM service and validates connectivity.
// Returns nil, nil when no provider is configured.
func CreateAndValidateLLMService(ctx context.Context, settings domain.LLMSettings) (driven.LLMService, error) {
	svc, err := CreateLLMService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'milo setup' to fix", domain.ErrLLMUnavailable, err)
	}
	if svc == nil {
		return nil, nil
	}

	if err := ping(ctx, svc.Ping); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w). Run 'milo setup' to fix",
			domain.ErrLLMUnavailable, err)
	}
	logger.Debug("LLM service ready: %s", svc.ModelName())
	return svc, nil
}

// CreateEmbeddingService creates the appropriate embedding service based on settings.
// Returns nil if the provider is not configured.
func CreateEmbeddingService(settings domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaEmbedding(settings), nil

	case domain.AIProviderOpenAI:
		return createOpenAIEmbedding(settings)

	case domain.AIProviderAnthropic:
		return nil, fmt.Errorf("anthropic does not support embeddings, use ollama or openai")

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// CreateLLMService creates the appropriate LLM service based on settings.
// Returns nil if the provider is not configured.
func CreateLLMService(settings domain.LLMSettings) (driven.LLMService, error) {
	if !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return createOllamaLLM(settings), nil

	case domain.AIProviderOpenAI:
		return createOpenAILLM(settings)

	case domain.AIProviderAnthropic:
		return createAnthropicLLM(settings)

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", settings.Provider)
	}
}

func ping(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return fn(ctx)
}

func createOllamaEmbedding(settings domain.EmbeddingSettings) driven.EmbeddingService {
	dimensions := settings.Dimensions
	if dimensions == 0 {
		dimensions = domain.EmbeddingDimensions()[settings.Model]
	}
	if dimensions == 0 {
		dimensions = ollamaembed.DefaultDimensions
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		Timeout:           settings.Timeout,
		Dimensions:        dimensions,
		Concurrency:       settings.Concurrency,
		RequestsPerSecond: settings.RequestsPerSecond,
	})
}

func createOpenAIEmbedding(settings domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	dimensions := settings.Dimensions
	if dimensions == 0 {
		dimensions = domain.EmbeddingDimensions()[settings.Model]
	}

	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:            settings.APIKey,
		BaseURL:           settings.BaseURL,
		Model:             settings.Model,
		Timeout:           settings.Timeout,
		Dimensions:        dimensions,
		RequestsPerSecond: settings.RequestsPerSecond,
	})
}

func createOllamaLLM(settings domain.LLMSettings) driven.LLMService {
	return ollamallm.NewLLMService(ollamallm.LLMConfig{
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
		Timeout: settings.Timeout,
	})
}

func createOpenAILLM(settings domain.LLMSettings) (driven.LLMService, error) {
	return openaillm.NewLLMService(openaillm.LLMConfig{
		APIKey:  settings.APIKey,
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
		Timeout: settings.Timeout,
	})
}

func createAnthropicLLM(settings domain.LLMSettings) (driven.LLMService, error) {
	return anthropicllm.NewLLMService(anthropicllm.Config{
		APIKey:  settings.APIKey,
		BaseURL: settings.BaseURL,
		Model:   settings.Model,
		Timeout: settings.Timeout,
	})
}
