package postprocessors

import (
	"fmt"
	"sort"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

// BuilderFunc creates a ChunkStrategy from generic config.
// Config is a map of strategy-specific settings parsed from user config.
type BuilderFunc func(cfg map[string]any) (driven.ChunkStrategy, error)

// Registry maps strategy names to their builders.
// It allows dynamic construction of strategies from configuration.
type Registry struct {
	builders map[string]BuilderFunc
}

// NewRegistry creates a new strategy registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]BuilderFunc),
	}
}

// Register adds a strategy builder to the registry.
// Name should be unique and match the strategy's Name() return value.
func (r *Registry) Register(name string, builder BuilderFunc) {
	r.builders[name] = builder
}

// Build creates a strategy by name with the given config.
// Returns domain.ErrUnsupportedType if the name is not registered.
func (r *Registry) Build(name string, cfg map[string]any) (driven.ChunkStrategy, error) {
	builder, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: chunking strategy %q", domain.ErrUnsupportedType, name)
	}
	return builder(cfg)
}

// Has returns true if a strategy with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.builders[name]
	return ok
}

// Names returns all registered strategy names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
