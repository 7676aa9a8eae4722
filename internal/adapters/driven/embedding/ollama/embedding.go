// Package ollama provides an embedding gateway backed by a local Ollama
// server.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/milo/internal/adapters/driven/ollamahttp"
	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/logger"
)

var (
	_ driven.EmbeddingService = (*EmbeddingService)(nil)
	_ driven.ModelLister      = (*EmbeddingService)(nil)
)

// Default configuration values.
const (
	DefaultBaseURL     = ollamahttp.DefaultBaseURL
	DefaultModel       = "mxbai-embed-large"
	DefaultTimeout     = 60 * time.Second
	DefaultDimensions  = 1024 // mxbai-embed-large
	DefaultConcurrency = 4
)

// Config holds configuration for the Ollama embedding gateway.
type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Dimensions int

	// Concurrency bounds parallel requests within EmbedBatch.
	Concurrency int

	// RequestsPerSecond throttles requests. Zero disables throttling.
	RequestsPerSecond float64
}

// EmbeddingService embeds text one request at a time through
// /api/embeddings and fans batches out over a bounded worker group.
type EmbeddingService struct {
	client      *ollamahttp.Client
	model       string
	dimensions  int
	concurrency int
	limiter     *rate.Limiter
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewEmbeddingService creates a gateway with defaults filled in.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	s := &EmbeddingService{
		client:      ollamahttp.New(cfg.BaseURL, cfg.Timeout, domain.ErrEmbeddingUnavailable),
		model:       cfg.Model,
		dimensions:  cfg.Dimensions,
		concurrency: cfg.Concurrency,
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Concurrency)
	}
	return s
}

// Embed returns the raw vector for text. Normalisation is left to the caller.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var resp embedResponse
	if err := s.client.Post(ctx, "/api/embeddings", embedRequest{Model: s.model, Prompt: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("ollama: empty embedding")
	}

	v := make([]float32, len(resp.Embedding))
	for i, x := range resp.Embedding {
		v[i] = float32(x)
	}
	return v, nil
}

// EmbedBatch embeds texts with bounded parallelism. Result i belongs to
// texts[i]; the first failure cancels the remaining requests.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			v, err := s.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed text %d: %w", i, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions returns the configured vector length.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the configured model.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// ListModels returns the models pulled on the server.
func (s *EmbeddingService) ListModels(ctx context.Context) ([]string, error) {
	return s.client.Models(ctx)
}

// Ping checks the server answers /api/tags and warns when the model has
// not been pulled.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	names, err := s.client.Models(ctx)
	if err != nil {
		return err
	}
	if !ollamahttp.HasModel(names, s.model) {
		logger.Warn("ollama: model %q is not pulled on %s (run: ollama pull %s)", s.model, s.client.BaseURL(), s.model)
	}
	return nil
}

// Close is a no-op.
func (s *EmbeddingService) Close() error {
	return nil
}
