package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type healthResult struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Backend string `json:"backend"`
}

// RegisterHealthTool adds the health tool. It does not touch the store.
func RegisterHealthTool(s *server.MCPServer, version, backend string) {
	tool := newReadOnlyTool(
		"health",
		mcp.WithDescription("Returns server health status, version and measurement store backend"),
	)

	status := healthResult{Status: "ok", Version: version, Backend: backend}
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(status)
	})
}
