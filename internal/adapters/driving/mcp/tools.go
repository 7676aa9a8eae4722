package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driving"
	"github.com/custodia-labs/milo/internal/core/services"
)

// RetrieveInput is the input schema for the retrieve tool.
type RetrieveInput struct {
	Question  string   `json:"question" jsonschema:"the question to find passages for"`
	TopK      int      `json:"top_k,omitempty" jsonschema:"number of passages to return (default from config)"`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"minimum relevance from 0 to 100 (default from config)"`
}

// RetrieveOutput is the output schema for the retrieve tool.
type RetrieveOutput struct {
	Passages []PassageOutput `json:"passages"`
	Count    int             `json:"count"`
	FellBack bool            `json:"fell_back"`

	// Context is the passages rendered the way they are given to the model.
	Context string `json:"context"`
}

// PassageOutput represents a single retrieved passage.
type PassageOutput struct {
	Source     string  `json:"source"`
	Label      string  `json:"label"`
	Similarity float64 `json:"similarity"`
	Content    string  `json:"content"`
	ChunkStart *int    `json:"chunk_start,omitempty"`
	ChunkEnd   *int    `json:"chunk_end,omitempty"`
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question  string   `json:"question" jsonschema:"the question to answer from stored documents"`
	TopK      int      `json:"top_k,omitempty" jsonschema:"number of passages to ground the answer on"`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"minimum relevance from 0 to 100"`
	Cite      bool     `json:"cite,omitempty" jsonschema:"answer per source document and report which sources were used"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources"`
	Model    string   `json:"model"`
	FellBack bool     `json:"fell_back"`

	// Citations and NoAnswer are set when cite was requested.
	Citations []domain.Citation `json:"citations,omitempty"`
	NoAnswer  bool              `json:"no_answer,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve",
		Description: "Find the stored passages most relevant to a question",
	}, s.handleRetrieve)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using only the stored documents",
	}, s.handleAsk)
}

// options merges per-call overrides onto the configured defaults.
func (s *Server) options(topK int, threshold *float64) (driving.QueryOptions, error) {
	opts := s.ports.defaults()
	if topK > 0 {
		opts.Retrieval.TopK = topK
	}
	if threshold != nil {
		opts.Retrieval.Threshold = *threshold
	}
	if err := opts.Retrieval.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func (s *Server) handleRetrieve(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RetrieveInput,
) (*mcp.CallToolResult, RetrieveOutput, error) {
	question, err := requireQuestion(input.Question)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}
	opts, err := s.options(input.TopK, input.Threshold)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	retrieval, err := s.ports.Query.Retrieve(ctx, question, opts)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}

	output := RetrieveOutput{
		Passages: make([]PassageOutput, len(retrieval.Results)),
		Count:    len(retrieval.Results),
		FellBack: retrieval.FellBack,
		Context:  services.FormatContext(retrieval.Results, opts.Locale),
	}
	for i, r := range retrieval.Results {
		output.Passages[i] = PassageOutput{
			Source:     r.Metadata.Source,
			Label:      services.SourceLabel(r.Metadata),
			Similarity: r.Similarity,
			Content:    r.Content,
			ChunkStart: r.Metadata.ChunkStart,
			ChunkEnd:   r.Metadata.ChunkEnd,
		}
	}

	return nil, output, nil
}

func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	question, err := requireQuestion(input.Question)
	if err != nil {
		return nil, AskOutput{}, err
	}
	opts, err := s.options(input.TopK, input.Threshold)
	if err != nil {
		return nil, AskOutput{}, err
	}
	opts.Cited = input.Cite

	answer, err := s.ports.Query.Ask(ctx, question, opts)
	if err != nil {
		return nil, AskOutput{}, err
	}

	model := answer.Model
	if model == "" {
		model = s.ports.Model
	}
	sources := answer.Sources()
	if input.Cite {
		sources = answer.CitedSources()
	}
	if sources == nil {
		sources = []string{}
	}

	return nil, AskOutput{
		Answer:   answer.Text,
		Sources:  sources,
		Model:    model,
		FellBack: answer.FellBack,

		Citations: answer.Citations,
		NoAnswer:  answer.NoAnswer,
	}, nil
}

func requireQuestion(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}
	return q, nil
}
