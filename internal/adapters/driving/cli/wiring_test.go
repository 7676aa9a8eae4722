package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/milo/internal/config"
	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driving"
)

// fakeOllama serves tags, fixed embeddings and a canned generation.
func fakeOllama(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var generated atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models": []}`))
		case "/api/embeddings":
			_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{1, 0, 0, 0}})
		case "/api/generate", "/api/chat":
			generated.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"response": "The sky is blue.",
				"message":  map[string]string{"role": "assistant", "content": "The sky is blue."},
				"done":     true,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &generated
}

func memoryConfig(ollamaURL string) *config.Config {
	cfg := config.Default()
	cfg.Store.Backend = string(domain.StoreBackendMemory)
	cfg.Store.Dimensions = 4
	cfg.Embedding.BaseURL = ollamaURL
	cfg.Embedding.Dimensions = 4
	cfg.LLM.BaseURL = ollamaURL
	return cfg
}

func TestDefaultOpenServices_EndToEnd(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	srv, generated := fakeOllama(t)
	ctx := context.Background()

	svc, err := defaultOpenServices(ctx, memoryConfig(srv.URL), needs{llm: true})
	require.NoError(t, err)
	defer svc.Close()

	assert.Equal(t, "llama3.2", svc.LLMModel)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sky.txt"), []byte("The sky is blue on a clear day."), 0o600))

	report, err := svc.Ingest.IngestPath(ctx, dir, driving.IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, 1, report.Chunks)
	assert.NotEmpty(t, report.RunID)

	count, err := svc.Store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	answer, err := svc.Query.Ask(ctx, "What colour is the sky?", driving.DefaultQueryOptions())
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", answer.Text)
	assert.False(t, answer.FellBack)
	require.Len(t, answer.Context, 1)
	assert.InDelta(t, 100, answer.Context[0].Similarity, 0.001)
	assert.Equal(t, int32(1), generated.Load())
}

func TestDefaultOpenServices_OptionalLLM(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	srv, _ := fakeOllama(t)
	cfg := memoryConfig(srv.URL)
	cfg.LLM.BaseURL = "http://127.0.0.1:1"

	svc, err := defaultOpenServices(context.Background(), cfg, needs{})
	require.NoError(t, err)
	defer svc.Close()

	assert.Empty(t, svc.LLMModel)
	_, err = svc.Query.Ask(context.Background(), "q", driving.DefaultQueryOptions())
	assert.ErrorIs(t, err, domain.ErrLLMUnavailable)

	_, err = defaultOpenServices(context.Background(), cfg, needs{llm: true})
	assert.Error(t, err)
}

func TestDefaultOpenServices_UnknownStrategy(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	srv, _ := fakeOllama(t)
	cfg := memoryConfig(srv.URL)
	cfg.Chunking.Strategy = "semantic"

	_, err := defaultOpenServices(context.Background(), cfg, needs{})
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Backend = "memory"
		store, err := openStore(ctx, cfg)
		require.NoError(t, err)
		defer store.Close()
		assert.Equal(t, cfg.Store.Dimensions, store.Dimensions())
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Backend = "sqlite"
		cfg.Store.Dimensions = 8
		store, err := openStore(ctx, cfg)
		require.NoError(t, err)
		defer store.Close()
		require.NoError(t, store.Setup(ctx))
		assert.Equal(t, 8, store.Dimensions())
	})

	t.Run("unsupported", func(t *testing.T) {
		cfg := config.Default()
		cfg.Store.Backend = "redis"
		_, err := openStore(ctx, cfg)
		assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	})
}
