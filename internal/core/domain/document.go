package domain

import (
	"encoding/json"
	"fmt"
)

// Metadata keys with a fixed meaning. Any other key lives in Metadata.Extra.
const (
	MetaSource     = "source"
	MetaFilename   = "filename"
	MetaType       = "type"
	MetaChunkStart = "chunk_start"
	MetaChunkEnd   = "chunk_end"
)

// Extra keys set by the file loader.
const (
	MetaSize     = "size"
	MetaModified = "modified"
)

// Document is a loaded file ready for chunking.
// It is immutable once handed to the ingest pipeline.
type Document struct {
	// ID is assigned by the vector store once persisted; zero before that.
	ID int64

	// Content is the full extracted text.
	Content string

	// Metadata describes where the content came from.
	Metadata Metadata
}

// Metadata is the typed metadata attached to documents and stored chunks.
// It serialises to a flat JSON object: the fixed fields plus every Extra key.
type Metadata struct {
	// Source is the path or URI the document was loaded from.
	Source string

	// Filename is the base name of the source.
	Filename string

	// Type is the file type without the leading dot (txt, md, pdf).
	Type string

	// ChunkStart and ChunkEnd are the chunk's byte offsets within the document.
	// Nil on document-level metadata.
	ChunkStart *int
	ChunkEnd   *int

	// Extra holds any additional keys.
	Extra map[string]any
}

// WithChunk returns a copy of m carrying the offsets of c.
func (m Metadata) WithChunk(c Chunk) Metadata {
	out := m
	start, end := c.StartOffset, c.EndOffset
	out.ChunkStart = &start
	out.ChunkEnd = &end
	if m.Extra != nil {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// MarshalJSON flattens the fixed fields and Extra into one object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(m.Extra)+5)
	for k, v := range m.Extra {
		flat[k] = v
	}
	if m.Source != "" {
		flat[MetaSource] = m.Source
	}
	if m.Filename != "" {
		flat[MetaFilename] = m.Filename
	}
	if m.Type != "" {
		flat[MetaType] = m.Type
	}
	if m.ChunkStart != nil {
		flat[MetaChunkStart] = *m.ChunkStart
	}
	if m.ChunkEnd != nil {
		flat[MetaChunkEnd] = *m.ChunkEnd
	}
	return json.Marshal(flat)
}

// UnmarshalJSON splits a flat object into the fixed fields and Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	*m = Metadata{}
	for k, raw := range flat {
		var err error
		switch k {
		case MetaSource:
			err = json.Unmarshal(raw, &m.Source)
		case MetaFilename:
			err = json.Unmarshal(raw, &m.Filename)
		case MetaType:
			err = json.Unmarshal(raw, &m.Type)
		case MetaChunkStart:
			m.ChunkStart = new(int)
			err = json.Unmarshal(raw, m.ChunkStart)
		case MetaChunkEnd:
			m.ChunkEnd = new(int)
			err = json.Unmarshal(raw, m.ChunkEnd)
		default:
			var v any
			err = json.Unmarshal(raw, &v)
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
		if err != nil {
			return fmt.Errorf("metadata field %q: %w", k, err)
		}
	}
	return nil
}

// Chunk is a contiguous segment of a document's content.
// Invariant: 0 <= StartOffset < EndOffset <= len(document) and
// Text == document[StartOffset:EndOffset].
type Chunk struct {
	Text        string
	StartOffset int
	EndOffset   int
}

// Len returns the chunk length in bytes.
func (c Chunk) Len() int {
	return c.EndOffset - c.StartOffset
}

// ChunkParams bounds chunk size and overlap.
type ChunkParams struct {
	// Size is the maximum chunk length in bytes (fixed strategy)
	// or words (LLM strategy).
	Size int

	// Overlap is the amount shared between consecutive chunks.
	Overlap int
}

// Validate reports ErrConfiguration unless 0 <= Overlap < Size.
func (p ChunkParams) Validate() error {
	if p.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrConfiguration, p.Size)
	}
	if p.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrConfiguration, p.Overlap)
	}
	if p.Overlap >= p.Size {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrConfiguration, p.Overlap, p.Size)
	}
	return nil
}

// StoredChunkRecord is one chunk as persisted: text, merged metadata and
// its embedding. ID is assigned by the store.
type StoredChunkRecord struct {
	ID        int64
	Content   string
	Metadata  Metadata
	Embedding []float32
}

// StoredDocument is the unit of work a vector store persists atomically:
// every chunk record of one source document.
type StoredDocument struct {
	Source  string
	Records []StoredChunkRecord

	// Replace removes the records previously stored for Source in the same
	// unit of work. Used when a watched file changes.
	Replace bool
}

// LoadFailure records a file that could not be loaded and was skipped.
type LoadFailure struct {
	Path string
	Err  error
}

func (f LoadFailure) Error() string {
	return fmt.Sprintf("load %s: %v", f.Path, f.Err)
}

func (f LoadFailure) Unwrap() []error {
	return []error{ErrLoad, f.Err}
}
