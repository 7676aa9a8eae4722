// Package ollamahttp is the JSON-over-HTTP transport shared by the Ollama
// embedding and generation gateways.
package ollamahttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/milo/internal/core/domain"
)

// DefaultBaseURL is where a local Ollama listens.
const DefaultBaseURL = "http://localhost:11434"

// Client talks to one Ollama server.
type Client struct {
	http        *http.Client
	baseURL     string
	unavailable error
}

// New creates a client. Transport failures are wrapped with unavailable,
// so each gateway reports its own sentinel.
func New(baseURL string, timeout time.Duration, unavailable error) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:        &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		unavailable: unavailable,
	}
}

// BaseURL returns the server address without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StatusError is a non-200 reply. A 404 means the model is not pulled and
// unwraps to domain.ErrConfiguration; 5xx unwraps to the client's
// unavailable sentinel.
type StatusError struct {
	Status  int
	Message string

	unavailable error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama: status %d: %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return domain.ErrConfiguration
	case e.Status >= http.StatusInternalServerError:
		return e.unavailable
	default:
		return nil
	}
}

// Post sends in as a non-streaming JSON request and decodes the reply into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("ollama: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// Models lists the names of locally pulled models.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.do(req, &tags); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: %w: %w", c.unavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return &StatusError{
			Status:      resp.StatusCode,
			Message:     errorMessage(raw),
			unavailable: c.unavailable,
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama: decode response: %w", err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} when present.
func errorMessage(raw []byte) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
		return envelope.Error
	}
	return strings.TrimSpace(string(raw))
}

// HasModel reports whether model is among names. An untagged model matches
// its ":latest" tag.
func HasModel(names []string, model string) bool {
	for _, name := range names {
		if name == model || (!strings.Contains(model, ":") && name == model+":latest") {
			return true
		}
	}
	return false
}
