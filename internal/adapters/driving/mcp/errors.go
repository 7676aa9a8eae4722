// Package mcp exposes milo's retrieval and question answering to MCP clients
// such as desktop assistants and editors.
package mcp

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")
