// Package sqlite provides an embedded driven.VectorStore for local and
// offline use.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Chunk records live in documents, their vectors in
// embeddings as little-endian float32 blobs. The store dimension is recorded
// in store_meta on first Setup and enforced afterwards.
//
// # Search
//
// There is no vector index. Search scans every embedding and computes cosine
// distance in Go, which is adequate for a personal corpus.
//
// # Data Location
//
// By default, the database is stored at ~/.milo/data/milo.db
package sqlite
