// Package mcp exposes the measurement services as MCP tools.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/oml2view/pkg/mcp/tools"
)

// ServerName is reported to MCP clients during initialization.
const ServerName = "oml2view"

// Server owns the mcp-go server the HTTP transport is built from.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates an MCP server with tool capabilities and no tools.
func NewServer(name, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		mcp:    server.NewMCPServer(name, version, server.WithToolCapabilities(true)),
		logger: logger,
	}
}

// NewMeasurementServer creates the oml2view server: health plus the
// read-only measurement tools over deps.
func NewMeasurementServer(version string, deps *tools.MeasurementToolDeps) *Server {
	s := NewServer(ServerName, version, deps.Logger)
	tools.RegisterHealthTool(s.mcp, version, deps.Backend)
	tools.RegisterMeasurementTools(s.mcp, deps)

	s.logger.Info("MCP tools registered", zap.String("backend", deps.Backend))
	return s
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// NewStreamableHTTPServer creates a stateless HTTP transport for this server.
// Routing to /mcp is left to the caller's mux.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
}
