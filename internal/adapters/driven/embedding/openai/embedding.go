// Package openai provides an embedding service adapter using the OpenAI API
// or any compatible server.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var (
	_ driven.EmbeddingService = (*EmbeddingService)(nil)
	_ driven.ModelLister      = (*EmbeddingService)(nil)
)

// Default configuration values.
const (
	DefaultModel     = "text-embedding-3-large"
	DefaultTimeout   = 60 * time.Second
	DefaultBatchSize = 256
)

// Model dimensions for OpenAI embedding models.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Config holds configuration for the OpenAI embedding service.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL. Empty uses the SDK default.
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-3-large).
	Model string

	// Timeout is the request timeout (default: 60s).
	Timeout time.Duration

	// Dimensions requests shortened vectors from text-embedding-3-* models.
	// Zero uses the model's native size.
	Dimensions int

	// RequestsPerSecond throttles requests. Zero disables throttling.
	RequestsPerSecond float64

	// MaxRetries overrides the SDK retry count when positive. Negative
	// disables retries.
	MaxRetries int
}

// EmbeddingService generates embeddings using the OpenAI API.
type EmbeddingService struct {
	client     openai.Client
	model      string
	dimensions int
	sendDims   bool
	batchSize  int
	limiter    *rate.Limiter
}

// NewEmbeddingService creates a new OpenAI embedding service.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	switch {
	case cfg.MaxRetries > 0:
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	case cfg.MaxRetries < 0:
		opts = append(opts, option.WithMaxRetries(0))
	}

	dimensions := cfg.Dimensions
	native, known := modelDimensions[cfg.Model]
	if dimensions == 0 {
		dimensions = native
		if !known {
			dimensions = 1536
		}
	}

	s := &EmbeddingService{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		dimensions: dimensions,
		sendDims:   cfg.Dimensions > 0 && strings.HasPrefix(cfg.Model, "text-embedding-3"),
		batchSize:  DefaultBatchSize,
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return s, nil
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch embeds texts in as few requests as possible. Results are
// placed by the index the API reports, so they keep the order of texts.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		if err := s.embedInto(ctx, texts[start:end], embeddings[start:end]); err != nil {
			return nil, err
		}
	}
	return embeddings, nil
}

func (s *EmbeddingService) embedInto(ctx context.Context, texts []string, out [][]float32) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(s.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if s.sendDims {
		params.Dimensions = openai.Int(int64(s.dimensions))
	}

	resp, err := s.client.Embeddings.New(ctx, params)
	if err != nil {
		return fmt.Errorf("openai: create embeddings: %w", err)
	}

	for _, data := range resp.Data {
		if data.Index < 0 || int(data.Index) >= len(out) {
			return fmt.Errorf("openai: embedding index %d out of range", data.Index)
		}
		embedding := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			embedding[i] = float32(v)
		}
		out[data.Index] = embedding
	}
	for i, e := range out {
		if e == nil {
			return fmt.Errorf("openai: no embedding returned for input %d", i)
		}
	}
	return nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// ListModels returns the ids of the models the key can use. The API does
// not say which of them produce embeddings.
func (s *EmbeddingService) ListModels(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.client.Models.ListAutoPaging(ctx)
	for iter.Next() {
		ids = append(ids, iter.Current().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("openai: list models: %w", err)
	}
	return ids, nil
}

// Ping validates the API key by listing models, without running inference.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if _, err := s.client.Models.List(ctx); err != nil {
		return fmt.Errorf("openai: ping failed: %w", err)
	}
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
