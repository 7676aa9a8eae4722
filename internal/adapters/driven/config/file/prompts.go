package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/logger"
)

var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore serves prompt templates from <dir>/<name>.txt. The directory
// is seeded with the built-in templates on first use, and a template that
// is missing, unreadable or lacks a required placeholder falls back to the
// built-in one.
type PromptStore struct {
	dir string

	seedOnce sync.Once
	seedErr  error

	mu    sync.RWMutex
	cache map[string]string
}

// NewPromptStore creates a store rooted at dir, or ~/.milo/prompts when dir
// is empty. No files are touched until the first Load.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		dir = filepath.Join(home, ".milo", "prompts")
	}
	return &PromptStore{dir: dir, cache: make(map[string]string)}, nil
}

// Dir returns the prompt directory.
func (s *PromptStore) Dir() string {
	return s.dir
}

// Load returns the template for name.
func (s *PromptStore) Load(name string) (string, error) {
	fallback, known := driven.DefaultPrompt(name)

	s.seedOnce.Do(func() { s.seedErr = s.seed() })
	if s.seedErr != nil {
		if known {
			return fallback, nil
		}
		return "", fmt.Errorf("prompt store: %w", s.seedErr)
	}

	s.mu.RLock()
	prompt, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return prompt, nil
	}

	prompt, err := s.read(name)
	switch {
	case err != nil && !known:
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	case err != nil:
		logger.Debug("prompt %s: %v; using built-in", name, err)
		prompt = fallback
	default:
		if missing := driven.MissingPlaceholders(name, prompt); len(missing) > 0 {
			logger.Warn("prompt %s is missing {{%s}}; using built-in", name, strings.Join(missing, "}}, {{"))
			prompt = fallback
		}
	}

	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		prompt = cached
	} else {
		s.cache[name] = prompt
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload drops cached templates so the next Load reads the files again.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	clear(s.cache)
	s.mu.Unlock()
}

func (s *PromptStore) path(name string) string {
	return filepath.Join(s.dir, name+".txt")
}

func (s *PromptStore) read(name string) (string, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// seed creates the directory and writes any built-in template or README
// that does not exist yet. Existing files are never overwritten.
func (s *PromptStore) seed() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create prompt directory: %w", err)
	}

	files := map[string]string{"README.md": readme}
	for _, name := range driven.DefaultPromptNames() {
		files[name+".txt"], _ = driven.DefaultPrompt(name)
	}
	for file, content := range files {
		path := filepath.Join(s.dir, file)
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			return fmt.Errorf("write %s: %w", file, err)
		}
	}
	return nil
}

const readme = `# Milo Prompts

Templates used when milo talks to the generation model.

## Files

- ` + "`answer_default.txt`" + ` - English answer prompt for ` + "`milo query`" + `
- ` + "`answer_alternate.txt`" + ` - Norwegian answer prompt (` + "`--locale alternate`" + `)
- ` + "`cited_default.txt`" + ` - English JSON answer keyed by source (` + "`--cite`" + `)
- ` + "`cited_alternate.txt`" + ` - Norwegian JSON answer keyed by source
- ` + "`chat_system.txt`" + ` - System prompt for ` + "`milo chat`" + `
- ` + "`llm_chunking.txt`" + ` - Segmentation prompt for ` + "`--strategy llm`" + `

## Placeholders

- ` + "`{{context}}`" + `, ` + "`{{question}}`" + ` - answer prompts (both required)
- ` + "`{{no_source}}`" + ` - cited prompts, the key meaning "no answer in context" (required)
- ` + "`{{word_limit}}`" + `, ` + "`{{overlap}}`" + `, ` + "`{{text}}`" + ` - chunking prompt (` + "`{{text}}`" + ` required)

A template missing a required placeholder is ignored with a warning.
Delete a file to restore its default on the next run.
`
