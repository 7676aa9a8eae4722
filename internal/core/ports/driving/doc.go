// Package driving defines what the CLI, the MCP server and the chat TUI call
// into: IngestService loads, chunks, embeds and stores documents, and
// QueryService retrieves ranked passages and generates answers from them.
//
// Implementations live in internal/core/services.
package driving
