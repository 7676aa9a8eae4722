package postprocessors

import (
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/postprocessors/chunker"
	"github.com/custodia-labs/milo/internal/postprocessors/llmchunker"
)

// RegisterDefaults registers the built-in strategies with the registry.
// llm and prompts back the "llm" strategy; llm may be nil, in which case
// building that strategy fails with domain.ErrLLMUnavailable.
func RegisterDefaults(r *Registry, llm driven.LLMService, prompts driven.PromptStore) {
	r.Register(chunker.Name, buildFixed)
	r.Register(llmchunker.Name, func(cfg map[string]any) (driven.ChunkStrategy, error) {
		return buildLLM(cfg, llm, prompts)
	})
}

// buildFixed creates the fixed-size chunker from generic config.
// Supported config keys:
//   - chunk_size (int): Bytes per chunk (default: 500)
//   - overlap (int): Overlapping bytes between chunks (default: 50)
func buildFixed(cfg map[string]any) (driven.ChunkStrategy, error) {
	var opts []chunker.Option

	if size, ok := getIntFromConfig(cfg, "chunk_size"); ok {
		opts = append(opts, chunker.WithChunkSize(size))
	}
	if overlap, ok := getIntFromConfig(cfg, "overlap"); ok {
		opts = append(opts, chunker.WithOverlap(overlap))
	}

	return chunker.New(opts...)
}

// buildLLM creates the LLM segmentation strategy. The fixed chunker built
// from the same config is used as fallback unless fallback is false.
// Supported config keys:
//   - word_limit (int): Maximum words per segment (default: 500)
//   - word_overlap (int): Words segments may repeat (default: 50)
//   - max_chars (int): Maximum bytes per segment, 0 for no limit
//   - max_attempts (int): Generation attempts before giving up (default: 3)
//   - fallback (bool): Fall back to fixed chunking on failure (default: true)
func buildLLM(cfg map[string]any, llm driven.LLMService, prompts driven.PromptStore) (driven.ChunkStrategy, error) {
	opts := []llmchunker.Option{llmchunker.WithPromptStore(prompts)}

	if n, ok := getIntFromConfig(cfg, "word_limit"); ok {
		opts = append(opts, llmchunker.WithWordLimit(n))
	}
	if n, ok := getIntFromConfig(cfg, "word_overlap"); ok {
		opts = append(opts, llmchunker.WithOverlap(n))
	}
	if n, ok := getIntFromConfig(cfg, "max_chars"); ok {
		opts = append(opts, llmchunker.WithMaxChars(n))
	}
	if n, ok := getIntFromConfig(cfg, "max_attempts"); ok {
		opts = append(opts, llmchunker.WithMaxAttempts(n))
	}

	if fb, ok := cfg["fallback"].(bool); !ok || fb {
		fixed, err := buildFixed(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, llmchunker.WithFallback(fixed))
	}

	return llmchunker.New(llm, opts...)
}

// getIntFromConfig safely extracts an int from generic config map.
// Handles int, int64, and float64 types that may come from TOML/JSON parsing.
func getIntFromConfig(cfg map[string]any, key string) (int, bool) {
	val, ok := cfg[key]
	if !ok {
		return 0, false
	}

	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
