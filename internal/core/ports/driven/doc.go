// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - EmbeddingService: Turns text into fixed-length vectors
//   - VectorStore: Persists chunk records and answers nearest-neighbour queries
//   - ChunkStrategy: Splits document text into bounded chunks
//   - DocumentLoader: Reads files into documents
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - LLMService: Generation. Without it, only retrieval is available.
//   - PromptStore: Customisable templates. Without it, built-in prompts are used.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or postprocessor package
package driven
