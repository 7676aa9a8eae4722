package domain

import "fmt"

// Retrieval defaults.
const (
	DefaultTopK      = 5
	DefaultThreshold = 70.0
)

// RetrievalOptions configures a similarity query.
type RetrievalOptions struct {
	// TopK is the number of nearest records to fetch.
	TopK int `json:"top_k"`

	// Threshold is the minimum similarity score (0-100) a result must reach.
	Threshold float64 `json:"threshold"`
}

// DefaultRetrievalOptions returns the standard top-5 / 70% options.
func DefaultRetrievalOptions() RetrievalOptions {
	return RetrievalOptions{TopK: DefaultTopK, Threshold: DefaultThreshold}
}

// Validate reports ErrInvalidInput for out-of-range options.
func (o RetrievalOptions) Validate() error {
	if o.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidInput, o.TopK)
	}
	if o.Threshold < 0 || o.Threshold > 100 {
		return fmt.Errorf("%w: threshold must be within [0, 100], got %g", ErrInvalidInput, o.Threshold)
	}
	return nil
}

// RetrievalResult is one ranked passage.
type RetrievalResult struct {
	// ChunkID is the store-assigned record id.
	ChunkID int64 `json:"chunk_id"`

	// Content is the chunk text.
	Content string `json:"content"`

	// Metadata is the stored chunk metadata.
	Metadata Metadata `json:"metadata"`

	// Similarity is (1 - cosine distance) * 100, within [0, 100].
	Similarity float64 `json:"similarity"`
}

// Retrieval is the outcome of a similarity query.
type Retrieval struct {
	// Results are sorted by similarity, highest first.
	Results []RetrievalResult `json:"results"`

	// FellBack is true when no result met the threshold and the
	// unfiltered top-K set was returned instead.
	FellBack bool `json:"fell_back"`

	// Threshold is the threshold that was applied.
	Threshold float64 `json:"threshold"`
}

// NoSourceKey is the key a generator answers with, alone, when none of the
// context passages answer the question.
const NoSourceKey = "ingen_kilde"

// Citation is one part of a cited answer and the source it was drawn from.
type Citation struct {
	// Source is the stored source identifier the generator attributed Text to.
	Source string `json:"source"`

	// Text is the answer drawn from Source.
	Text string `json:"text"`
}

// Answer is a generated response grounded on retrieved passages.
type Answer struct {
	Question string
	Text     string
	Model    string
	Context  []RetrievalResult
	FellBack bool

	// Citations is set for cited answers, in the order the generator gave them.
	Citations []Citation

	// NoAnswer is true when a cited answer reported that the context does
	// not answer the question. Text then holds the generator's apology and
	// Citations is empty.
	NoAnswer bool
}

// CitedSources returns the distinct sources the generator attributed its
// answer to. It is empty for uncited answers.
func (a Answer) CitedSources() []string {
	seen := make(map[string]bool, len(a.Citations))
	var out []string
	for _, c := range a.Citations {
		if seen[c.Source] {
			continue
		}
		seen[c.Source] = true
		out = append(out, c.Source)
	}
	return out
}

// Sources returns the distinct source identifiers of the answer's context,
// in ranking order.
func (a Answer) Sources() []string {
	seen := make(map[string]bool, len(a.Context))
	var out []string
	for _, r := range a.Context {
		src := r.Metadata.Source
		if src == "" || seen[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out
}
