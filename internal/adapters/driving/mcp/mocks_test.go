package mcp

import (
	"context"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
	"github.com/custodia-labs/milo/internal/core/ports/driving"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	retrieval *domain.Retrieval
	answer    *domain.Answer
	err       error

	question string
	opts     driving.QueryOptions
}

func (m *mockQueryService) Retrieve(
	_ context.Context, question string, opts driving.QueryOptions,
) (*domain.Retrieval, error) {
	m.question, m.opts = question, opts
	if m.err != nil {
		return nil, m.err
	}
	if m.retrieval == nil {
		return &domain.Retrieval{Threshold: opts.Retrieval.Threshold}, nil
	}
	return m.retrieval, nil
}

func (m *mockQueryService) Ask(
	_ context.Context, question string, opts driving.QueryOptions,
) (*domain.Answer, error) {
	m.question, m.opts = question, opts
	if m.err != nil {
		return nil, m.err
	}
	if m.answer == nil {
		return &domain.Answer{Question: question}, nil
	}
	return m.answer, nil
}

func (m *mockQueryService) Chat(
	ctx context.Context, _ []driven.ChatMessage, question string, opts driving.QueryOptions,
) (*domain.Answer, error) {
	return m.Ask(ctx, question, opts)
}
