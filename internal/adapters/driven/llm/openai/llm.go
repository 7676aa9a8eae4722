// Package openai provides an LLM service adapter using the OpenAI API or any
// compatible server.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

// Ensure LLMService implements the interface.
var (
	_ driven.LLMService  = (*LLMService)(nil)
	_ driven.ModelLister = (*LLMService)(nil)
)

// Default configuration values.
const (
	DefaultLLMModel   = "gpt-4o-mini"
	DefaultLLMTimeout = 120 * time.Second
)

// LLMConfig holds configuration for the OpenAI LLM service.
type LLMConfig struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL. Empty uses the SDK default.
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the LLM model to use (default: gpt-4o-mini).
	Model string

	// Timeout is the request timeout (default: 120s).
	Timeout time.Duration

	// MaxRetries overrides the SDK retry count when positive. Negative
	// disables retries.
	MaxRetries int
}

// LLMService provides LLM operations using the OpenAI chat completions API.
type LLMService struct {
	client openai.Client
	model  string
}

// NewLLMService creates a new OpenAI LLM service.
func NewLLMService(cfg LLMConfig) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultLLMTimeout
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

	return &LLMService{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

// Generate produces text completion from a prompt. A schema in opts is sent
// as a json_schema response format.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	params := s.params(
		[]openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		opts.MaxTokens, opts.Temperature,
	)
	if len(opts.StopWords) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopWords}
	}
	if len(opts.Schema) > 0 {
		var schema map[string]any
		if err := json.Unmarshal(opts.Schema, &schema); err != nil {
			return "", fmt.Errorf("openai: invalid schema: %w", err)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "response",
					Schema: schema,
				},
			},
		}
	}
	return s.complete(ctx, params)
}

// Chat conducts a multi-turn conversation.
func (s *LLMService) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case driven.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case driven.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return s.complete(ctx, s.params(msgs, opts.MaxTokens, opts.Temperature))
}

func (s *LLMService) params(
	msgs []openai.ChatCompletionMessageParamUnion, maxTokens int, temperature float64,
) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(s.model),
		Messages: msgs,
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}
	if temperature > 0 {
		params.Temperature = openai.Float(temperature)
	}
	return params
}

func (s *LLMService) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

// ModelName returns the name of the LLM model being used.
func (s *LLMService) ModelName() string {
	return s.model
}

// ListModels returns the ids of the models the key can use.
func (s *LLMService) ListModels(ctx context.Context) ([]string, error) {
	return listModels(ctx, s.client)
}

func listModels(ctx context.Context, client openai.Client) ([]string, error) {
	var ids []string
	iter := client.Models.ListAutoPaging(ctx)
	for iter.Next() {
		ids = append(ids, iter.Current().ID)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("openai: list models: %w", err)
	}
	return ids, nil
}

// Ping validates the API key by listing models, without running inference.
func (s *LLMService) Ping(ctx context.Context) error {
	if _, err := s.client.Models.List(ctx); err != nil {
		return fmt.Errorf("openai: ping failed: %w", err)
	}
	return nil
}

// Close releases resources.
func (s *LLMService) Close() error {
	return nil
}
