// Package config loads milo's typed configuration from TOML or YAML files,
// a .env file and environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/milo/internal/core/domain"
)

// Environment variables that override file settings.
const (
	EnvConnection    = "POSTGRES_CONNECTION_STRING"
	EnvOllamaBaseURL = "OLLAMA_BASE_URL"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvAnthropicKey  = "ANTHROPIC_API_KEY"
	EnvStore         = "MILO_STORE"
)

// DefaultInstruction is the retrieval task prepended to queries.
const DefaultInstruction = "Given a search, find relevant documents that answer the question."

// DefaultOllamaURL is the address of a local Ollama server.
const DefaultOllamaURL = "http://localhost:11434"

// Config is the root application configuration.
type Config struct {
	Store     StoreConfig     `toml:"store" yaml:"store"`
	Embedding EmbeddingConfig `toml:"embedding" yaml:"embedding"`
	LLM       LLMConfig       `toml:"llm" yaml:"llm"`
	Chunking  ChunkingConfig  `toml:"chunking" yaml:"chunking"`
	Retrieval RetrievalConfig `toml:"retrieval" yaml:"retrieval"`

	// PromptDir holds customisable prompt templates. Empty uses ~/.milo/prompts.
	PromptDir string `toml:"prompt_dir" yaml:"prompt_dir"`
}

// StoreConfig selects and configures the vector store.
type StoreConfig struct {
	Backend     string `toml:"backend" yaml:"backend"`
	Connection  string `toml:"connection" yaml:"connection"`
	DataDir     string `toml:"data_dir" yaml:"data_dir"`
	Dimensions  int    `toml:"dimensions" yaml:"dimensions"`
	TimeoutSecs int    `toml:"timeout_secs" yaml:"timeout_secs"`
	IndexLists  int    `toml:"index_lists" yaml:"index_lists"`
}

// EmbeddingConfig configures the embedding gateway.
type EmbeddingConfig struct {
	Provider          string  `toml:"provider" yaml:"provider"`
	Model             string  `toml:"model" yaml:"model"`
	BaseURL           string  `toml:"base_url" yaml:"base_url"`
	APIKeyEnv         string  `toml:"api_key_env" yaml:"api_key_env"`
	Dimensions        int     `toml:"dimensions" yaml:"dimensions"`
	Instruction       string  `toml:"instruction" yaml:"instruction"`
	Concurrency       int     `toml:"concurrency" yaml:"concurrency"`
	RequestsPerSecond float64 `toml:"requests_per_second" yaml:"requests_per_second"`
	BatchSize         int     `toml:"batch_size" yaml:"batch_size"`
	TimeoutSecs       int     `toml:"timeout_secs" yaml:"timeout_secs"`
}

// LLMConfig configures the generation gateway.
type LLMConfig struct {
	Provider    string  `toml:"provider" yaml:"provider"`
	Model       string  `toml:"model" yaml:"model"`
	BaseURL     string  `toml:"base_url" yaml:"base_url"`
	APIKeyEnv   string  `toml:"api_key_env" yaml:"api_key_env"`
	TimeoutSecs int     `toml:"timeout_secs" yaml:"timeout_secs"`
	MaxTokens   int     `toml:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `toml:"temperature" yaml:"temperature"`

	// CiteAttempts bounds requests for a well-formed cited answer.
	CiteAttempts int `toml:"cite_attempts" yaml:"cite_attempts"`
}

// ChunkingConfig selects and configures the chunking strategy.
type ChunkingConfig struct {
	Strategy    string `toml:"strategy" yaml:"strategy"`
	ChunkSize   int    `toml:"chunk_size" yaml:"chunk_size"`
	Overlap     int    `toml:"overlap" yaml:"overlap"`
	WordLimit   int    `toml:"word_limit" yaml:"word_limit"`
	WordOverlap int    `toml:"word_overlap" yaml:"word_overlap"`
	MaxChars    int    `toml:"max_chars" yaml:"max_chars"`
	MaxAttempts int    `toml:"max_attempts" yaml:"max_attempts"`
	Fallback    bool   `toml:"fallback" yaml:"fallback"`
}

// RetrievalConfig sets query defaults.
type RetrievalConfig struct {
	TopK      int     `toml:"top_k" yaml:"top_k"`
	Threshold float64 `toml:"threshold" yaml:"threshold"`
	Locale    string  `toml:"locale" yaml:"locale"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:     string(domain.StoreBackendPostgres),
			Dimensions:  1024,
			TimeoutSecs: 10,
			IndexLists:  100,
		},
		Embedding: EmbeddingConfig{
			Provider:    string(domain.AIProviderOllama),
			Model:       "mxbai-embed-large",
			BaseURL:     DefaultOllamaURL,
			Instruction: DefaultInstruction,
			Concurrency: 4,
			BatchSize:   32,
			TimeoutSecs: 60,
		},
		LLM: LLMConfig{
			Provider:     string(domain.AIProviderOllama),
			Model:        "llama3.2",
			BaseURL:      DefaultOllamaURL,
			TimeoutSecs:  300,
			CiteAttempts: 3,
		},
		Chunking: ChunkingConfig{
			Strategy:    string(domain.ChunkStrategyFixed),
			ChunkSize:   500,
			Overlap:     50,
			WordLimit:   500,
			WordOverlap: 50,
			MaxAttempts: 3,
			Fallback:    true,
		},
		Retrieval: RetrievalConfig{
			TopK:      domain.DefaultTopK,
			Threshold: domain.DefaultThreshold,
			Locale:    string(domain.LocaleDefault),
		},
	}
}

// Dir returns the milo configuration directory, ~/.milo.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".milo"), nil
}

// DefaultPath returns ~/.milo/config.toml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config at path over the defaults, applies environment
// overrides and validates the result. An empty path uses DefaultPath. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored. With no arguments ./.env is loaded.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// DotEnvPath returns the user-level .env file, ~/.milo/.env.
func DotEnvPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ".env"), nil
}

// SetDotEnv sets key in the .env file at path, keeping its other entries.
// The file is created with owner-only permissions.
func SetDotEnv(path, key, value string) error {
	env := map[string]string{}
	if _, err := os.Stat(path); err == nil {
		existing, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		env = existing
	}
	env[key] = value

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Chmod(path, 0600)
}

func decode(path string, data []byte, cfg *Config) error {
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml", "":
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(cfg)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return fmt.Errorf("%w: config format %q", domain.ErrUnsupportedType, ext)
	}
	if err != nil {
		return fmt.Errorf("%w: parse %s: %w", domain.ErrConfiguration, path, err)
	}
	return nil
}

// applyEnv overrides file settings from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvStore); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv(EnvConnection); v != "" {
		c.Store.Connection = v
	}
	if v := os.Getenv(EnvOllamaBaseURL); v != "" {
		if c.Embedding.Provider == string(domain.AIProviderOllama) {
			c.Embedding.BaseURL = v
		}
		if c.LLM.Provider == string(domain.AIProviderOllama) {
			c.LLM.BaseURL = v
		}
	}
}

// Save writes the config to path as TOML or YAML, by extension, creating
// parent directories as needed.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = toml.Marshal(c)
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate reports domain.ErrConfiguration for unusable settings.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !domain.StoreBackend(c.Store.Backend).IsValid() {
		add("store.backend %q is not one of postgres, sqlite, memory", c.Store.Backend)
	}
	if c.Store.Dimensions <= 0 {
		add("store.dimensions must be positive, got %d", c.Store.Dimensions)
	}
	if c.Store.IndexLists <= 0 {
		add("store.index_lists must be positive, got %d", c.Store.IndexLists)
	}
	if p := domain.AIProvider(c.Embedding.Provider); !p.SupportsEmbeddings() {
		add("embedding.provider %q cannot produce embeddings", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions < 0 {
		add("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.Dimensions > 0 && c.Embedding.Dimensions != c.Store.Dimensions {
		add("embedding.dimensions %d differs from store.dimensions %d", c.Embedding.Dimensions, c.Store.Dimensions)
	}
	if c.LLM.CiteAttempts < 0 {
		add("llm.cite_attempts must not be negative, got %d", c.LLM.CiteAttempts)
	}
	if c.LLM.Provider != "" && !domain.AIProvider(c.LLM.Provider).IsValid() {
		add("llm.provider %q is not recognised", c.LLM.Provider)
	}
	if !domain.ChunkStrategyName(c.Chunking.Strategy).IsValid() {
		add("chunking.strategy %q is not one of fixed, llm", c.Chunking.Strategy)
	}
	if err := (domain.ChunkParams{Size: c.Chunking.ChunkSize, Overlap: c.Chunking.Overlap}).Validate(); err != nil {
		add("chunking: %v", err)
	}
	if c.Chunking.Strategy == string(domain.ChunkStrategyLLM) {
		if err := (domain.ChunkParams{Size: c.Chunking.WordLimit, Overlap: c.Chunking.WordOverlap}).Validate(); err != nil {
			add("chunking words: %v", err)
		}
	}
	if err := c.RetrievalOptions().Validate(); err != nil {
		add("retrieval: %v", err)
	}
	if _, ok := domain.ParseLocale(c.Retrieval.Locale); !ok {
		add("retrieval.locale %q is not one of default, alternate", c.Retrieval.Locale)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// StoreBackend returns the configured backend.
func (c *Config) StoreBackend() domain.StoreBackend {
	return domain.StoreBackend(c.Store.Backend)
}

// StoreTimeout returns the per-call store timeout.
func (c *Config) StoreTimeout() time.Duration {
	return seconds(c.Store.TimeoutSecs)
}

// DataDir returns the directory for embedded store files, ~/.milo/data by default.
func (c *Config) DataDir() (string, error) {
	if c.Store.DataDir != "" {
		return c.Store.DataDir, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}

// EmbeddingSettings resolves the embedding gateway settings, reading the
// API key from the configured environment variable.
func (c *Config) EmbeddingSettings() domain.EmbeddingSettings {
	provider := domain.AIProvider(c.Embedding.Provider)
	dims := c.Embedding.Dimensions
	if dims == 0 {
		dims = c.Store.Dimensions
	}
	return domain.EmbeddingSettings{
		Provider:          provider,
		Model:             c.Embedding.Model,
		BaseURL:           c.Embedding.BaseURL,
		APIKey:            apiKey(provider, c.Embedding.APIKeyEnv),
		Dimensions:        dims,
		Concurrency:       c.Embedding.Concurrency,
		RequestsPerSecond: c.Embedding.RequestsPerSecond,
		Timeout:           seconds(c.Embedding.TimeoutSecs),
	}
}

// LLMSettings resolves the generation gateway settings.
func (c *Config) LLMSettings() domain.LLMSettings {
	provider := domain.AIProvider(c.LLM.Provider)
	return domain.LLMSettings{
		Provider: provider,
		Model:    c.LLM.Model,
		BaseURL:  c.LLM.BaseURL,
		APIKey:   apiKey(provider, c.LLM.APIKeyEnv),
		Timeout:  seconds(c.LLM.TimeoutSecs),
	}
}

// RetrievalOptions returns the configured top-K and threshold.
func (c *Config) RetrievalOptions() domain.RetrievalOptions {
	return domain.RetrievalOptions{TopK: c.Retrieval.TopK, Threshold: c.Retrieval.Threshold}
}

// Locale returns the configured locale, or the default when unrecognised.
func (c *Config) Locale() domain.Locale {
	l, ok := domain.ParseLocale(c.Retrieval.Locale)
	if !ok {
		return domain.LocaleDefault
	}
	return l
}

// ChunkingOptions returns the chunking settings as a generic map for the
// strategy registry.
func (c *Config) ChunkingOptions() map[string]any {
	return map[string]any{
		"chunk_size":   c.Chunking.ChunkSize,
		"overlap":      c.Chunking.Overlap,
		"word_limit":   c.Chunking.WordLimit,
		"word_overlap": c.Chunking.WordOverlap,
		"max_chars":    c.Chunking.MaxChars,
		"max_attempts": c.Chunking.MaxAttempts,
		"fallback":     c.Chunking.Fallback,
	}
}

func apiKey(provider domain.AIProvider, envName string) string {
	if envName == "" {
		switch provider {
		case domain.AIProviderOpenAI:
			envName = EnvOpenAIKey
		case domain.AIProviderAnthropic:
			envName = EnvAnthropicKey
		default:
			return ""
		}
	}
	return os.Getenv(envName)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
