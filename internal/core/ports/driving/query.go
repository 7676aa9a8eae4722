package driving

import (
	"context"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

// QueryService answers questions from stored documents.
type QueryService interface {
	// Retrieve embeds the question and returns ranked passages.
	Retrieve(ctx context.Context, question string, opts QueryOptions) (*domain.Retrieval, error)

	// Ask retrieves passages and generates an answer grounded on them.
	Ask(ctx context.Context, question string, opts QueryOptions) (*domain.Answer, error)

	// Chat answers a follow-up question within a conversation. history holds
	// earlier user and assistant turns; passages are retrieved for question only.
	Chat(ctx context.Context, history []driven.ChatMessage, question string, opts QueryOptions) (*domain.Answer, error)
}

// QueryOptions configures a single query.
type QueryOptions struct {
	// Retrieval sets top-K and the relevance threshold.
	Retrieval domain.RetrievalOptions

	// Locale selects prompt and attribution wording.
	Locale domain.Locale

	// Cited asks for a structured answer keyed by source document, recorded
	// in Answer.Citations. Cited answers are single-turn.
	Cited bool
}

// DefaultQueryOptions returns top-5, 70% threshold, default locale.
func DefaultQueryOptions() QueryOptions {
	return QueryOptions{
		Retrieval: domain.DefaultRetrievalOptions(),
		Locale:    domain.LocaleDefault,
	}
}
