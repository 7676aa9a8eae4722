// Package domain defines the core entities of the milo RAG pipeline.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A loaded file with its source metadata
//   - Chunk: A bounded, offset-addressed segment of a document
//   - StoredDocument: The unit of work persisted by a vector store
//   - RetrievalResult: A ranked passage returned for a query
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
