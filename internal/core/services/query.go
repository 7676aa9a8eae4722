package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/core/ports/driving"
	"github.com/custodia-labs/milo/internal/logger"
)

// Ensure QueryService implements the interface.
var _ driving.QueryService = (*QueryService)(nil)

// DefaultInstruction is the retrieval task prepended to queries for
// instruction-tuned embedding models.
const DefaultInstruction = "Given a search, find relevant documents that answer the question."

// FormatQuery prefixes query with an instruction in the
// "Instruct: ...\nQuery: ..." form. An empty task returns query unchanged.
func FormatQuery(task, query string) string {
	if task == "" {
		return query
	}
	return "Instruct: " + task + "\nQuery: " + query
}

// QueryService embeds questions, retrieves ranked passages and generates
// grounded answers.
type QueryService struct {
	embedder    driven.EmbeddingService
	retriever   *Retriever
	llm         driven.LLMService
	prompts     *PromptBuilder
	instruction string
	genOpts     driven.GenerateOptions

	citeAttempts int
}

// NewQueryService creates a query service. llm may be nil, in which case
// only Retrieve is available.
func NewQueryService(embedder driven.EmbeddingService, retriever *Retriever, llm driven.LLMService) *QueryService {
	return &QueryService{
		embedder:    embedder,
		retriever:   retriever,
		llm:         llm,
		prompts:     NewPromptBuilder(nil),
		instruction:  DefaultInstruction,
		citeAttempts: DefaultCiteAttempts,
	}
}

// SetPromptStore implements driven.PromptStoreAware.
func (s *QueryService) SetPromptStore(store driven.PromptStore) {
	s.prompts = NewPromptBuilder(store)
}

// SetInstruction overrides the query instruction. Empty disables the prefix.
func (s *QueryService) SetInstruction(task string) {
	s.instruction = task
}

// SetGenerateOptions sets the options passed to the generator.
func (s *QueryService) SetGenerateOptions(opts driven.GenerateOptions) {
	s.genOpts = opts
}

// SetCiteAttempts sets how many times a cited answer is requested before
// the query fails. Non-positive values are ignored.
func (s *QueryService) SetCiteAttempts(n int) {
	if n > 0 {
		s.citeAttempts = n
	}
}

// Retrieve embeds the question and returns ranked passages.
func (s *QueryService) Retrieve(ctx context.Context, question string, opts driving.QueryOptions) (*domain.Retrieval, error) {
	logger.Section("Retrieval")

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}

	vec, err := s.embedder.Embed(ctx, FormatQuery(s.instruction, question))
	if err != nil {
		return nil, fmt.Errorf("embed question: %w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	queryVec := domain.Normalize(vec)
	logger.Debug("Query embedded with %s (%d dimensions)", s.embedder.ModelName(), len(queryVec))

	return s.retriever.Retrieve(ctx, queryVec, opts.Retrieval)
}

// Ask retrieves passages for question and generates an answer from them.
// A failed or empty generation is domain.ErrGeneration; no answer is
// fabricated.
func (s *QueryService) Ask(ctx context.Context, question string, opts driving.QueryOptions) (*domain.Answer, error) {
	return s.Chat(ctx, nil, question, opts)
}

// Chat answers question in the context of history.
func (s *QueryService) Chat(
	ctx context.Context, history []driven.ChatMessage, question string, opts driving.QueryOptions,
) (*domain.Answer, error) {
	if s.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}
	if opts.Cited && len(history) > 0 {
		return nil, fmt.Errorf("%w: cited answers are single-turn", domain.ErrInvalidInput)
	}

	retrieval, err := s.Retrieve(ctx, question, opts)
	if err != nil {
		return nil, err
	}
	if len(retrieval.Results) == 0 {
		return nil, fmt.Errorf("%w: no documents have been ingested", domain.ErrNotFound)
	}

	if opts.Cited {
		logger.Section("Generation")
		return s.cited(ctx, strings.TrimSpace(question), retrieval, opts)
	}

	logger.Section("Generation")
	prompt := s.prompts.Build(opts.Locale, FormatContext(retrieval.Results, opts.Locale), strings.TrimSpace(question))
	logger.Debug("Prompt is %d bytes, model %s", len(prompt), s.llm.ModelName())

	var raw string
	if len(history) == 0 {
		raw, err = s.llm.Generate(ctx, prompt, s.genOpts)
	} else {
		messages := make([]driven.ChatMessage, 0, len(history)+2)
		messages = append(messages, driven.ChatMessage{Role: driven.RoleSystem, Content: s.prompts.System()})
		messages = append(messages, history...)
		messages = append(messages, driven.ChatMessage{Role: driven.RoleUser, Content: prompt})
		raw, err = s.llm.Chat(ctx, messages, driven.ChatOptions{
			MaxTokens:   s.genOpts.MaxTokens,
			Temperature: s.genOpts.Temperature,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}

	text := StripRelevance(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: generator returned an empty answer", domain.ErrGeneration)
	}

	return &domain.Answer{
		Question: question,
		Text:     text,
		Model:    s.llm.ModelName(),
		Context:  retrieval.Results,
		FellBack: retrieval.FellBack,
	}, nil
}
