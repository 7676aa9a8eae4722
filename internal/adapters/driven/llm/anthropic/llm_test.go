package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

type recorder struct {
	requests []messagesRequest
	headers  []http.Header
}

func (rec *recorder) server(t *testing.T, status int, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.headers = append(rec.headers, r.Header.Clone())
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/models":
			w.WriteHeader(status)
			fmt.Fprint(w, `{"data": []}`)
		case "/v1/messages":
			var req messagesRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			rec.requests = append(rec.requests, req)
			w.WriteHeader(status)
			if status != http.StatusOK {
				fmt.Fprint(w, `{"error": {"type": "invalid_request_error", "message": "bad key"}}`)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"content": []map[string]string{
					{"type": "text", "text": reply},
					{"type": "tool_use", "text": "ignored"},
				},
				"stop_reason": "end_turn",
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestService(t *testing.T, url string) *LLMService {
	t.Helper()
	s, err := NewLLMService(Config{APIKey: "key", BaseURL: url})
	require.NoError(t, err)
	return s
}

func TestNewLLMService(t *testing.T) {
	_, err := NewLLMService(Config{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	s, err := NewLLMService(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, s.ModelName())
	assert.Equal(t, DefaultBaseURL, s.baseURL)
}

func TestGenerate(t *testing.T) {
	rec := &recorder{}
	srv := rec.server(t, http.StatusOK, "Oslo")
	defer srv.Close()

	out, err := newTestService(t, srv.URL).Generate(context.Background(), "Capital of Norway?", driven.GenerateOptions{
		StopWords: []string{"###"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Oslo", out)
	require.Len(t, rec.requests, 1)
	req := rec.requests[0]
	assert.Equal(t, defaultMaxTokens, req.MaxTokens)
	assert.Equal(t, []string{"###"}, req.StopSeqs)
	assert.Empty(t, req.System)
	assert.Equal(t, "key", rec.headers[0].Get("x-api-key"))
	assert.Equal(t, apiVersion, rec.headers[0].Get("anthropic-version"))
}

func TestGenerate_SchemaGoesToSystemPrompt(t *testing.T) {
	rec := &recorder{}
	srv := rec.server(t, http.StatusOK, `{"chunks": []}`)
	defer srv.Close()

	_, err := newTestService(t, srv.URL).Generate(context.Background(), "split", driven.GenerateOptions{
		Schema: json.RawMessage(`{"type":"object"}`),
	})

	require.NoError(t, err)
	assert.Equal(t, schemaInstruction+`{"type":"object"}`, rec.requests[0].System)
}

func TestChat_JoinsSystemMessages(t *testing.T) {
	rec := &recorder{}
	srv := rec.server(t, http.StatusOK, "ok")
	defer srv.Close()

	_, err := newTestService(t, srv.URL).Chat(context.Background(), []driven.ChatMessage{
		{Role: "system", Content: "one"},
		{Role: "user", Content: "hi"},
		{Role: "system", Content: "two"},
	}, driven.ChatOptions{MaxTokens: 10})

	require.NoError(t, err)
	req := rec.requests[0]
	assert.Equal(t, "one\n\ntwo", req.System)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, 10, req.MaxTokens)
}

func TestGenerate_APIError(t *testing.T) {
	rec := &recorder{}
	srv := rec.server(t, http.StatusUnauthorized, "")
	defer srv.Close()

	_, err := newTestService(t, srv.URL).Generate(context.Background(), "x", driven.GenerateOptions{})

	assert.ErrorContains(t, err, "bad key")
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_request_error", apiErr.Type)
}

func TestGenerate_OverloadedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(529)
		fmt.Fprint(w, `{"type": "error", "error": {"type": "overloaded_error", "message": "Overloaded"}}`)
	}))
	defer srv.Close()

	_, err := newTestService(t, srv.URL).Generate(context.Background(), "x", driven.GenerateOptions{})

	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
	assert.False(t, domain.IsFatal(err))
}

func TestGenerate_Unreachable(t *testing.T) {
	_, err := newTestService(t, "http://127.0.0.1:1").Generate(context.Background(), "x", driven.GenerateOptions{})
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)
}

func TestGenerate_NoTextContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"content": [], "stop_reason": "end_turn"}`)
	}))
	defer srv.Close()

	_, err := newTestService(t, srv.URL).Generate(context.Background(), "x", driven.GenerateOptions{})
	assert.ErrorContains(t, err, "no text content")
}

func TestPing(t *testing.T) {
	rec := &recorder{}
	ok := rec.server(t, http.StatusOK, "")
	defer ok.Close()
	assert.NoError(t, newTestService(t, ok.URL).Ping(context.Background()))

	denied := rec.server(t, http.StatusForbidden, "")
	defer denied.Close()
	assert.ErrorContains(t, newTestService(t, denied.URL).Ping(context.Background()), "403")
}

func TestListModels_Pages(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		assert.Equal(t, "/v1/models", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		if r.URL.Query().Get("after_id") == "" {
			fmt.Fprint(w, `{"data": [{"id": "claude-a"}, {"id": "claude-b"}], "has_more": true, "last_id": "claude-b"}`)
			return
		}
		fmt.Fprint(w, `{"data": [{"id": "claude-c"}], "has_more": false, "last_id": "claude-c"}`)
	}))
	defer srv.Close()

	ids, err := newTestService(t, srv.URL).ListModels(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"claude-a", "claude-b", "claude-c"}, ids)
	require.Len(t, queries, 2)
	assert.Contains(t, queries[1], "after_id=claude-b")
}

func TestListModels_Denied(t *testing.T) {
	rec := &recorder{}
	srv := rec.server(t, http.StatusUnauthorized, "")
	defer srv.Close()

	_, err := newTestService(t, srv.URL).ListModels(context.Background())

	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
