package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/milo/internal/adapters/driving/mcp"
	"github.com/custodia-labs/milo/internal/logger"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  `Commands for the Model Context Protocol (MCP) server integration.`,
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the Model Context Protocol server so assistants can query your documents.

Tools:
  retrieve   ranked passages for a question
  ask        an answer grounded on the stored documents (needs an LLM)

By default the server speaks JSON-RPC over stdio. Use --port to serve
streamable HTTP instead, for the MCP Inspector or remote clients.

Examples:
  milo mcp serve
  milo mcp serve --port 8080

Client configuration:
  {
    "mcpServers": {
      "milo": {
        "command": "/path/to/milo",
        "args": ["mcp", "serve"]
      }
    }
  }`,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().IntP("port", "p", 0, "HTTP port (0 = use stdio)")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("getting port flag: %w", err)
	}
	ctx := cmd.Context()

	return withServices(ctx, needs{}, nil, func(svc *Services) error {
		if svc.LLMModel == "" {
			logger.Warn("no language model configured: the ask tool will fail")
		}

		server, err := mcp.NewServer(&mcp.Ports{
			Query:    svc.Query,
			Defaults: queryOptions(svc.Config),
			Model:    svc.LLMModel,
		})
		if err != nil {
			return err
		}

		if port > 0 {
			addr := fmt.Sprintf(":%d", port)
			fmt.Fprintf(cmd.ErrOrStderr(), "MCP server listening on http://localhost%s\n", addr)
			return server.RunHTTP(ctx, addr)
		}
		return server.Run(ctx)
	})
}
