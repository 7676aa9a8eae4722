// Package anthropic provides a generation gateway backed by the Anthropic
// messages API. Anthropic has no embeddings endpoint, so it only serves the
// LLM side of the pipeline.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

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
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-3-5-sonnet-latest"
	DefaultTimeout = 120 * time.Second

	apiVersion = "2023-06-01"

	// max_tokens is mandatory on /v1/messages.
	defaultMaxTokens = 1024
)

// schemaInstruction prefixes the JSON Schema in the system prompt. The
// messages API has no structured output mode.
const schemaInstruction = "Respond with a single JSON value and nothing else. It must validate against this JSON Schema:\n"

// Config holds configuration for the Anthropic gateway.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// LLMService generates answers through /v1/messages.
type LLMService struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewLLMService creates a gateway. An API key is required.
func NewLLMService(cfg Config) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w: API key is required", domain.ErrConfiguration)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &LLMService{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	StopSeqs    []string  `json:"stop_sequences,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// APIError is a non-2xx answer from the API. It unwraps to
// domain.ErrConfiguration for credential problems and to
// domain.ErrLLMUnavailable for overload and server faults.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("anthropic: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("anthropic: status %d: %s: %s", e.Status, e.Type, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return domain.ErrConfiguration
	case e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError:
		return domain.ErrLLMUnavailable
	default:
		return nil
	}
}

// Generate sends a single user turn. A schema in opts is passed as a system
// instruction; callers still validate the output.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	req := s.newRequest(opts.MaxTokens, opts.Temperature)
	req.Messages = []message{{Role: driven.RoleUser, Content: prompt}}
	req.StopSeqs = opts.StopWords
	if len(opts.Schema) > 0 {
		req.System = schemaInstruction + string(opts.Schema)
	}
	return s.send(ctx, req)
}

// Chat sends a conversation. System messages are lifted into the system
// field in order; the API rejects them inside the message list.
func (s *LLMService) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	req := s.newRequest(opts.MaxTokens, opts.Temperature)

	var system []string
	for _, m := range messages {
		if m.Role == driven.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		req.Messages = append(req.Messages, message{Role: m.Role, Content: m.Content})
	}
	req.System = strings.Join(system, "\n\n")

	return s.send(ctx, req)
}

func (s *LLMService) newRequest(maxTokens int, temperature float64) messagesRequest {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return messagesRequest{
		Model:       s.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

func (s *LLMService) send(ctx context.Context, req messagesRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("anthropic: marshal request: %w", err)
	}

	var resp messagesResponse
	if err := s.do(ctx, http.MethodPost, "/v1/messages", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if resp.StopReason == "max_tokens" {
		logger.Warn("anthropic: answer truncated at %d tokens", req.MaxTokens)
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", errors.New("anthropic: response had no text content")
	}
	return out.String(), nil
}

// do performs an authenticated request and decodes a 2xx body into out.
func (s *LLMService) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("anthropic: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("anthropic: %w: %w", domain.ErrLLMUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("anthropic: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("anthropic: decode response: %w", err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{Status: status}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

// ModelName returns the configured model.
func (s *LLMService) ModelName() string {
	return s.model
}

type modelsPage struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
	HasMore bool   `json:"has_more"`
	LastID  string `json:"last_id"`
}

// ListModels pages through /v1/models.
func (s *LLMService) ListModels(ctx context.Context) ([]string, error) {
	var ids []string
	path := "/v1/models?limit=1000"
	for {
		var page modelsPage
		if err := s.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		for _, m := range page.Data {
			ids = append(ids, m.ID)
		}
		if !page.HasMore || page.LastID == "" {
			return ids, nil
		}
		path = "/v1/models?limit=1000&after_id=" + url.QueryEscape(page.LastID)
	}
}

// Ping checks the key against /v1/models without running inference.
func (s *LLMService) Ping(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/v1/models", nil, nil)
}

// Close is a no-op.
func (s *LLMService) Close() error {
	return nil
}
