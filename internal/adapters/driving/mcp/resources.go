package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const uriScheme = "milo://"

// settingsResource describes the retrieval defaults tool calls inherit.
type settingsResource struct {
	TopK      int     `json:"top_k"`
	Threshold float64 `json:"threshold"`
	Locale    string  `json:"locale"`
	Model     string  `json:"model,omitempty"`
}

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "settings",
		Name:        "settings",
		Description: "Retrieval defaults and the configured language model",
		MIMEType:    "application/json",
	}, s.handleSettingsResource)
}

func (s *Server) handleSettingsResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	opts := s.ports.defaults()
	data, err := json.MarshalIndent(settingsResource{
		TopK:      opts.Retrieval.TopK,
		Threshold: opts.Retrieval.Threshold,
		Locale:    string(opts.Locale),
		Model:     s.ports.Model,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling settings: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
