package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

func sampleResults() []domain.RetrievalResult {
	return []domain.RetrievalResult{
		{ChunkID: 1, Content: "Invoices are sent monthly.", Metadata: domain.Metadata{Source: "docs/billing.md", Filename: "billing.md"}, Similarity: 91.26},
		{ChunkID: 2, Content: "Support is open on weekdays.", Metadata: domain.Metadata{Source: "/srv/kb/support.tar.txt"}, Similarity: 74},
	}
}

func TestFormatContext_Default(t *testing.T) {
	got := FormatContext(sampleResults(), domain.LocaleDefault)

	want := "Here are some relevant documents to help answer the question:\n\n" +
		"Document 1 from billing (Relevance: 91.3%):\nInvoices are sent monthly.\n\n" +
		"Document 2 from support (Relevance: 74.0%):\nSupport is open on weekdays.\n\n"
	assert.Equal(t, want, got)
}

func TestFormatContext_Alternate(t *testing.T) {
	got := FormatContext(sampleResults(), domain.LocaleAlternate)

	assert.True(t, strings.HasPrefix(got, "Her er noen relevante dokumenter"))
	assert.Contains(t, got, "Dokument 1 fra billing (Relevans: 91.3%):\nInvoices are sent monthly.\n\n")
	assert.Contains(t, got, "Dokument 2 fra support (Relevans: 74.0%):\nSupport is open on weekdays.\n\n")
}

func TestFormatContext_LocaleDoesNotChangeOrderOrContent(t *testing.T) {
	results := sampleResults()
	en := FormatContext(results, domain.LocaleDefault)
	no := FormatContext(results, domain.LocaleAlternate)

	for _, text := range []string{en, no} {
		first := strings.Index(text, results[0].Content)
		second := strings.Index(text, results[1].Content)
		assert.Greater(t, first, 0)
		assert.Greater(t, second, first)
	}
}

func TestFormatContext_UnknownLocaleUsesDefault(t *testing.T) {
	assert.Equal(t,
		FormatContext(sampleResults(), domain.LocaleDefault),
		FormatContext(sampleResults(), domain.Locale("klingon")))
}

func TestSourceLabel(t *testing.T) {
	tests := []struct {
		name string
		meta domain.Metadata
		want string
	}{
		{"filename", domain.Metadata{Filename: "handbook.md"}, "handbook"},
		{"multiple extensions", domain.Metadata{Filename: "archive.tar.gz"}, "archive"},
		{"source path", domain.Metadata{Source: "/data/policies/leave.pdf"}, "leave"},
		{"no extension", domain.Metadata{Source: "README"}, "README"},
		{"dotfile", domain.Metadata{Filename: ".env"}, ".env"},
		{"dotted words", domain.Metadata{Filename: "release notes v1.2 final.txt"}, "release notes v1.2 final"},
		{"empty", domain.Metadata{}, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SourceLabel(tt.meta))
		})
	}
}

func TestStripRelevance(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Invoices are monthly (Relevance: 91.3%).", "Invoices are monthly."},
		{"Per Document 1 (Relevance: 87%) billing is monthly.", "Per Document 1 billing is monthly."},
		{"Fakturaer sendes månedlig (Relevans: 87,3 %).", "Fakturaer sendes månedlig."},
		{"relevance:100% sure", "sure"},
		{"No annotations here.", "No annotations here."},
		{"Line one (Relevance: 80.0%)\nLine two", "Line one\nLine two"},
		{"  (Relevance: 75.5%)  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StripRelevance(tt.in))
		})
	}
}

type promptStoreStub map[string]string

func (s promptStoreStub) Load(name string) (string, error) {
	if p, ok := s[name]; ok {
		return p, nil
	}
	return "", errors.New("missing")
}
func (s promptStoreStub) Reload() {}

func TestPromptBuilder_Build(t *testing.T) {
	b := NewPromptBuilder(nil)

	en := b.Build(domain.LocaleDefault, "CTX", "What is billed?")
	assert.Contains(t, en, "You are an AI assistant")
	assert.Contains(t, en, "CTX")
	assert.Contains(t, en, "Question: What is billed?")

	no := b.Build(domain.LocaleAlternate, "CTX", "Hva faktureres?")
	assert.Contains(t, no, "norsk AI-assistent")
	assert.Contains(t, no, "Spørsmål: Hva faktureres?")
}

func TestPromptBuilder_UsesStore(t *testing.T) {
	b := NewPromptBuilder(promptStoreStub{
		driven.PromptAnswerDefault: "C={{context}} Q={{question}}",
		driven.PromptChatSystem:    "be terse",
	})

	assert.Equal(t, "C=ctx Q=q", b.Build(domain.LocaleDefault, "ctx", "q"))
	assert.Equal(t, "be terse", b.System())

	// Missing templates fall back to the built-in ones.
	assert.Contains(t, b.Build(domain.LocaleAlternate, "ctx", "q"), "norsk")
}
