package mcp

import (
	"github.com/custodia-labs/milo/internal/core/ports/driving"
)

// Ports aggregates the driving ports required by the MCP server.
type Ports struct {
	// Query retrieves passages and answers questions.
	Query driving.QueryService

	// Defaults apply when a tool call leaves top_k or threshold unset.
	Defaults driving.QueryOptions

	// Model names the generator reported by the ask tool. Empty when
	// no language model is configured.
	Model string
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	return nil
}

func (p *Ports) defaults() driving.QueryOptions {
	opts := p.Defaults
	if opts.Retrieval.TopK <= 0 {
		opts.Retrieval = driving.DefaultQueryOptions().Retrieval
	}
	if opts.Locale == "" {
		opts.Locale = driving.DefaultQueryOptions().Locale
	}
	return opts
}
