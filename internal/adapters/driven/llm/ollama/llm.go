// Package ollama provides a generation gateway backed by a local Ollama
// server. Structured output is requested through Ollama's format field.
package ollama

import (
	"context"
	"encoding/json"
	"time"

	"github.com/custodia-labs/milo/internal/adapters/driven/ollamahttp"
	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/logger"
)

var (
	_ driven.LLMService  = (*LLMService)(nil)
	_ driven.ModelLister = (*LLMService)(nil)
)

// Default configuration values.
const (
	DefaultBaseURL    = ollamahttp.DefaultBaseURL
	DefaultLLMModel   = "llama3.2"
	DefaultLLMTimeout = 300 * time.Second
)

// LLMConfig holds configuration for the Ollama generation gateway.
type LLMConfig struct {
	BaseURL string
	Model   string

	// Timeout bounds one request. Local models can take minutes on a
	// long prompt.
	Timeout time.Duration
}

// LLMService generates through /api/generate and /api/chat.
type LLMService struct {
	client *ollamahttp.Client
	model  string
}

// NewLLMService creates a gateway with defaults filled in.
func NewLLMService(cfg LLMConfig) *LLMService {
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultLLMTimeout
	}
	return &LLMService{
		client: ollamahttp.New(cfg.BaseURL, cfg.Timeout, domain.ErrLLMUnavailable),
		model:  cfg.Model,
	}
}

type options struct {
	NumPredict  int      `json:"num_predict,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

func newOptions(maxTokens int, temperature float64, stop []string) *options {
	if maxTokens <= 0 && temperature <= 0 && len(stop) == 0 {
		return nil
	}
	return &options{NumPredict: maxTokens, Temperature: temperature, Stop: stop}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  json.RawMessage `json:"format,omitempty"`
	Options *options        `json:"options,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  *options  `json:"options,omitempty"`
}

// Generate completes a single prompt. A schema in opts becomes the format
// constraint.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	var resp struct {
		Response string `json:"response"`
	}
	err := s.client.Post(ctx, "/api/generate", generateRequest{
		Model:   s.model,
		Prompt:  prompt,
		Format:  opts.Schema,
		Options: newOptions(opts.MaxTokens, opts.Temperature, opts.StopWords),
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Response, nil
}

// Chat continues a conversation.
func (s *LLMService) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	req := chatRequest{
		Model:    s.model,
		Messages: make([]message, len(messages)),
		Options:  newOptions(opts.MaxTokens, opts.Temperature, nil),
	}
	for i, m := range messages {
		req.Messages[i] = message{Role: m.Role, Content: m.Content}
	}

	var resp struct {
		Message message `json:"message"`
	}
	if err := s.client.Post(ctx, "/api/chat", req, &resp); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// ModelName returns the configured model.
func (s *LLMService) ModelName() string {
	return s.model
}

// ListModels returns the models pulled on the server.
func (s *LLMService) ListModels(ctx context.Context) ([]string, error) {
	return s.client.Models(ctx)
}

// Ping checks the server answers /api/tags. A model that is not pulled yet
// is only warned about; Ollama reports it on first use.
func (s *LLMService) Ping(ctx context.Context) error {
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
func (s *LLMService) Close() error {
	return nil
}
