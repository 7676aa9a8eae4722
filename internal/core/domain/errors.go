package domain

import "errors"

// Domain errors represent pipeline failures.
// Adapters wrap their infrastructure errors with one of these so callers
// can branch with errors.Is.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown strategy, backend or file type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrConfiguration indicates invalid settings such as chunk
	// parameters or store dimensions. Fatal; never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// store dimension. Fatal; never retried.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrStoreUnavailable indicates the vector store could not be reached
	// or did not answer in time.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrCorruptRecord indicates a stored record that could not be decoded.
	// The store answered, so it is not ErrStoreUnavailable.
	ErrCorruptRecord = errors.New("corrupt stored record")

	// ErrLoad indicates a source file could not be read or parsed.
	ErrLoad = errors.New("load error")

	// ErrGeneration indicates the generator failed or returned unusable output.
	ErrGeneration = errors.New("generation failed")

	// ErrLLMUnavailable indicates the LLM service is not configured or reachable.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured or reachable.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")
)

// IsFatal reports whether err is a configuration-class error that must not
// be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrDimensionMismatch)
}
