package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/milo/internal/core/domain"
	"github.com/custodia-labs/milo/internal/core/ports/driving"
	"github.com/custodia-labs/milo/internal/logger"
)

// DefaultCiteAttempts is how many times the generator is asked for a cited
// answer before the query fails.
const DefaultCiteAttempts = 3

// citedSchema constrains generator output to a flat object of strings.
var citedSchema = json.RawMessage(`{
  "type": "object",
  "minProperties": 1,
  "additionalProperties": {"type": "string"}
}`)

var errInvalidCitation = errors.New("invalid cited answer")

var citeWordings = map[domain.Locale]struct {
	source   string
	noAnswer string
}{
	domain.LocaleDefault: {
		source:   "Source",
		noAnswer: "Sorry, I could not find a relevant answer in the given information.",
	},
	domain.LocaleAlternate: {
		source:   "Kilde",
		noAnswer: "Beklager, jeg fant ikke et relevant svar i den gitte informasjonen.",
	},
}

func citeWording(locale domain.Locale) (source, noAnswer string) {
	w, ok := citeWordings[locale]
	if !ok {
		w = citeWordings[domain.LocaleDefault]
	}
	return w.source, w.noAnswer
}

// cited asks for a JSON answer keyed by source and retries output that is
// malformed or names a source outside the context. Gateway failures are not
// retried.
func (s *QueryService) cited(
	ctx context.Context, question string, retrieval *domain.Retrieval, opts driving.QueryOptions,
) (*domain.Answer, error) {
	prompt := s.prompts.BuildCited(opts.Locale, FormatContext(retrieval.Results, opts.Locale), question)
	genOpts := s.genOpts
	genOpts.Schema = citedSchema

	attempts := s.citeAttempts
	if attempts <= 0 {
		attempts = DefaultCiteAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		raw, err := s.llm.Generate(ctx, prompt, genOpts)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrGeneration, err)
		}

		pairs, err := decodeCitations(raw)
		if err == nil {
			var answer *domain.Answer
			answer, err = resolveCitations(pairs, retrieval.Results, opts.Locale)
			if err == nil {
				logger.Debug("cited answer with %d citations on attempt %d", len(answer.Citations), attempt)
				answer.Question = question
				answer.Model = s.llm.ModelName()
				answer.Context = retrieval.Results
				answer.FellBack = retrieval.FellBack
				return answer, nil
			}
		}
		lastErr = err
		logger.Warn("cited answer attempt %d/%d: %v", attempt, attempts, err)
	}
	return nil, fmt.Errorf("%w: cited answer: %w", domain.ErrGeneration, lastErr)
}

// citationPair is one key/value of the generator's object, in output order.
type citationPair struct {
	key   string
	value string
}

// decodeCitations parses exactly one JSON object whose values are all
// strings. Key order is kept and duplicate keys are rejected.
func decodeCitations(raw string) ([]citationPair, error) {
	dec := json.NewDecoder(strings.NewReader(raw))

	if tok, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	} else if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: response is not a JSON object", errInvalidCitation)
	}

	var pairs []citationPair
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		key, _ := tok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: value for %q is not a string", errInvalidCitation, key)
		}
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate key %q", errInvalidCitation, key)
		}
		seen[key] = true
		pairs = append(pairs, citationPair{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode response: trailing data after JSON object")
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no answers returned", errInvalidCitation)
	}
	return pairs, nil
}

// resolveCitations maps each key to a context source and renders the
// answer as "<text> Source: <name>" lines. The no-source key must stand alone.
func resolveCitations(pairs []citationPair, results []domain.RetrievalResult, locale domain.Locale) (*domain.Answer, error) {
	sourceWord, noAnswer := citeWording(locale)

	for _, p := range pairs {
		if strings.TrimSpace(p.key) != domain.NoSourceKey {
			continue
		}
		if len(pairs) > 1 {
			return nil, fmt.Errorf("%w: %q must be the only key", errInvalidCitation, domain.NoSourceKey)
		}
		text := StripRelevance(p.value)
		if text == "" {
			text = noAnswer
		}
		return &domain.Answer{Text: text, NoAnswer: true}, nil
	}

	answer := &domain.Answer{Citations: make([]domain.Citation, 0, len(pairs))}
	lines := make([]string, 0, len(pairs))
	for _, p := range pairs {
		source, ok := matchSource(p.key, results)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a source in the context", errInvalidCitation, p.key)
		}
		text := StripRelevance(p.value)
		if text == "" {
			return nil, fmt.Errorf("%w: empty answer for %q", errInvalidCitation, p.key)
		}
		answer.Citations = append(answer.Citations, domain.Citation{Source: source, Text: text})
		lines = append(lines, fmt.Sprintf("%s %s: %s", text, sourceWord, filepath.Base(source)))
	}
	answer.Text = strings.Join(lines, "\n")
	return answer, nil
}

// matchSource finds the context source a generator key refers to. A key may
// be the source path, its filename or the filename without extensions.
func matchSource(key string, results []domain.RetrievalResult) (string, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}
	for _, r := range results {
		meta := r.Metadata
		source := meta.Source
		if source == "" {
			source = meta.Filename
		}
		if source == "" {
			continue
		}
		for _, name := range []string{meta.Source, meta.Filename, filepath.Base(source), SourceLabel(meta)} {
			if name != "" && strings.EqualFold(key, name) {
				return source, true
			}
		}
	}
	return "", false
}
