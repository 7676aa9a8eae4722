package postprocessors

import (
	"context"
	"errors"
	"testing"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

// registryMockStrategy is a simple mock for testing registry functionality.
type registryMockStrategy struct {
	name string
}

func (m *registryMockStrategy) Name() string { return m.name }
func (m *registryMockStrategy) Chunk(_ context.Context, text string) ([]domain.Chunk, error) {
	return []domain.Chunk{{Text: text, StartOffset: 0, EndOffset: len(text)}}, nil
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if len(r.builders) != 0 {
		t.Errorf("expected empty builders, got %d", len(r.builders))
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	builder := func(_ map[string]any) (driven.ChunkStrategy, error) {
		return &registryMockStrategy{name: "test"}, nil
	}

	r.Register("test", builder)

	if !r.Has("test") {
		t.Error("expected 'test' to be registered")
	}
}

func TestRegistry_Build_Success(t *testing.T) {
	r := NewRegistry()

	builder := func(cfg map[string]any) (driven.ChunkStrategy, error) {
		name := "default"
		if n, ok := cfg["name"].(string); ok {
			name = n
		}
		return &registryMockStrategy{name: name}, nil
	}

	r.Register("test", builder)

	s, err := r.Build("test", map[string]any{"name": "custom"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if s.Name() != "custom" {
		t.Errorf("expected name 'custom', got %q", s.Name())
	}
}

func TestRegistry_Build_UnknownStrategy(t *testing.T) {
	r := NewRegistry()

	_, err := r.Build("semantic", nil)
	if !errors.Is(err, domain.ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestRegistry_Build_PropagatesBuilderError(t *testing.T) {
	r := NewRegistry()
	r.Register("broken", func(map[string]any) (driven.ChunkStrategy, error) {
		return nil, domain.ErrConfiguration
	})

	_, err := r.Build("broken", nil)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	r.Register("zeta", nil)
	r.Register("alpha", nil)

	names := r.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("expected sorted [alpha zeta], got %v", names)
	}
}
