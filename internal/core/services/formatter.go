package services

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driven"
)

// contextWording holds the locale-specific literals of a formatted context.
type contextWording struct {
	header   string
	document string
	from     string
	score    string
}

var wordings = map[domain.Locale]contextWording{
	domain.LocaleDefault: {
		header:   "Here are some relevant documents to help answer the question:",
		document: "Document",
		from:     "from",
		score:    "Relevance",
	},
	domain.LocaleAlternate: {
		header:   "Her er noen relevante dokumenter som kan hjelpe med å besvare spørsmålet:",
		document: "Dokument",
		from:     "fra",
		score:    "Relevans",
	},
}

func wordingFor(locale domain.Locale) contextWording {
	if w, ok := wordings[locale]; ok {
		return w
	}
	return wordings[domain.LocaleDefault]
}

// FormatContext renders ranked results as prompt context. Each result gets
// an attribution line naming its source and relevance, followed by its raw
// content and a blank line. Order and content never depend on locale.
func FormatContext(results []domain.RetrievalResult, locale domain.Locale) string {
	w := wordingFor(locale)

	var b strings.Builder
	b.WriteString(w.header)
	b.WriteString("\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%s %d %s %s (%s: %.1f%%):\n", w.document, i+1, w.from, SourceLabel(r.Metadata), w.score, r.Similarity)
		b.WriteString(r.Content)
		b.WriteString("\n\n")
	}
	return b.String()
}

// extPattern matches a trailing file extension.
var extPattern = regexp.MustCompile(`\.[A-Za-z0-9]{1,5}$`)

// SourceLabel returns a human-readable source name: the filename (or the
// base of the source path) with its file extensions removed.
func SourceLabel(meta domain.Metadata) string {
	name := meta.Filename
	if name == "" && meta.Source != "" {
		name = filepath.Base(meta.Source)
	}
	for {
		loc := extPattern.FindStringIndex(name)
		if loc == nil || loc[0] == 0 {
			break
		}
		name = name[:loc[0]]
	}
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "unknown"
	}
	return name
}

// relevancePattern matches relevance annotations the generator may echo
// back, such as "(Relevance: 87.3%)" or "Relevans: 87,3 %".
var relevancePattern = regexp.MustCompile(`(?i)[ \t]*\(?\b(?:relevance|relevans)[ \t]*:[ \t]*\d{1,3}(?:[.,]\d+)?[ \t]*%\)?`)

var repeatedBlanks = regexp.MustCompile(`[ \t]{2,}`)

// StripRelevance removes echoed relevance annotations from a generated answer.
func StripRelevance(answer string) string {
	out := relevancePattern.ReplaceAllString(answer, "")
	out = repeatedBlanks.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// PromptBuilder renders answer prompts from a PromptStore, falling back to
// the built-in templates.
type PromptBuilder struct {
	store driven.PromptStore
}

// NewPromptBuilder creates a builder. store may be nil.
func NewPromptBuilder(store driven.PromptStore) *PromptBuilder {
	return &PromptBuilder{store: store}
}

// Build renders the answer prompt for locale.
func (b *PromptBuilder) Build(locale domain.Locale, context, question string) string {
	name := driven.PromptAnswerDefault
	if locale == domain.LocaleAlternate {
		name = driven.PromptAnswerAlternate
	}
	return driven.RenderPrompt(b.template(name), map[string]string{
		"context":  context,
		"question": question,
	})
}

// BuildCited renders the cited-answer prompt for locale.
func (b *PromptBuilder) BuildCited(locale domain.Locale, context, question string) string {
	name := driven.PromptCitedDefault
	if locale == domain.LocaleAlternate {
		name = driven.PromptCitedAlternate
	}
	return driven.RenderPrompt(b.template(name), map[string]string{
		"context":   context,
		"question":  question,
		"no_source": domain.NoSourceKey,
	})
}

// System returns the chat system prompt.
func (b *PromptBuilder) System() string {
	return b.template(driven.PromptChatSystem)
}

func (b *PromptBuilder) template(name string) string {
	if b != nil && b.store != nil {
		if t, err := b.store.Load(name); err == nil && t != "" {
			return t
		}
	}
	t, _ := driven.DefaultPrompt(name)
	return t
}
