package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or generation.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI API or a compatible server.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is the Anthropic API (generation only).
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// SupportsEmbeddings returns true if the provider can produce embeddings.
func (p AIProvider) SupportsEmbeddings() bool {
	return p == AIProviderOllama || p == AIProviderOpenAI
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// AllEmbeddingProviders returns the providers that can produce embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{AIProviderOllama, AIProviderOpenAI}
}

// AllLLMProviders returns the providers that can generate text.
func AllLLMProviders() []AIProvider {
	return []AIProvider{AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic}
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// StoreBackend identifies a vector store implementation.
type StoreBackend string

// Available store backends.
const (
	// StoreBackendPostgres is PostgreSQL with the pgvector extension.
	StoreBackendPostgres StoreBackend = "postgres"

	// StoreBackendSQLite is an embedded SQLite database with exact search.
	StoreBackendSQLite StoreBackend = "sqlite"

	// StoreBackendMemory keeps records in process memory.
	StoreBackendMemory StoreBackend = "memory"
)

// AllStoreBackends returns every backend, most capable first.
func AllStoreBackends() []StoreBackend {
	return []StoreBackend{StoreBackendPostgres, StoreBackendSQLite, StoreBackendMemory}
}

// IsValid returns true if the backend is recognised.
func (b StoreBackend) IsValid() bool {
	switch b {
	case StoreBackendPostgres, StoreBackendSQLite, StoreBackendMemory:
		return true
	default:
		return false
	}
}

// IsPersistent returns true if records survive process exit.
func (b StoreBackend) IsPersistent() bool {
	return b == StoreBackendPostgres || b == StoreBackendSQLite
}

// String returns the string representation.
func (b StoreBackend) String() string {
	return string(b)
}

// ChunkStrategyName identifies a chunking strategy.
type ChunkStrategyName string

// Available chunking strategies.
const (
	// ChunkStrategyFixed is the boundary-aware fixed-size chunker.
	ChunkStrategyFixed ChunkStrategyName = "fixed"

	// ChunkStrategyLLM delegates segmentation to the generator.
	ChunkStrategyLLM ChunkStrategyName = "llm"
)

// IsValid returns true if the strategy is recognised.
func (s ChunkStrategyName) IsValid() bool {
	return s == ChunkStrategyFixed || s == ChunkStrategyLLM
}

// String returns the string representation.
func (s ChunkStrategyName) String() string {
	return string(s)
}

// Locale selects the literal wording of prompts and context attribution.
type Locale string

// Available locales.
const (
	// LocaleDefault renders English wording.
	LocaleDefault Locale = "default"

	// LocaleAlternate renders Norwegian wording.
	LocaleAlternate Locale = "alternate"
)

// ParseLocale maps user input to a Locale. Empty input is the default.
func ParseLocale(s string) (Locale, bool) {
	switch s {
	case "", "default", "en":
		return LocaleDefault, true
	case "alternate", "no", "nb":
		return LocaleAlternate, true
	default:
		return "", false
	}
}

// String returns the string representation.
func (l Locale) String() string {
	return string(l)
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions is the vector length D the model produces.
	Dimensions int

	// Concurrency bounds parallel requests in a batch.
	Concurrency int

	// RequestsPerSecond throttles calls to the provider. Zero disables throttling.
	RequestsPerSecond float64

	// Timeout bounds a single request.
	Timeout time.Duration
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds generation provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI/Anthropic).
	APIKey string

	// Timeout bounds a single request.
	Timeout time.Duration
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "mxbai-embed-large",
		AIProviderOpenAI: "text-embedding-3-large",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the native vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		"bge-m3":            1024,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
