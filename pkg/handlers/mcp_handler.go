package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/oml2view/pkg/mcp"
	"github.com/ekaya-inc/oml2view/pkg/middleware"
)

// MCPPath is where the streamable HTTP transport is mounted.
const MCPPath = "/mcp"

// MCPHandler serves MCP JSON-RPC over streamable HTTP.
type MCPHandler struct {
	handler http.Handler
	logger  *zap.Logger
}

// NewMCPHandler wraps the server's stateless HTTP transport with MCP request
// logging.
func NewMCPHandler(mcpServer *mcp.Server, logger *zap.Logger) *MCPHandler {
	return &MCPHandler{
		handler: middleware.MCPRequestLogger(logger)(mcpServer.NewStreamableHTTPServer()),
		logger:  logger,
	}
}

// RegisterRoutes mounts the transport at MCPPath. Only POST is accepted.
func (h *MCPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(MCPPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			if err := ErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "MCP requests must use POST"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.handler.ServeHTTP(w, r)
	})
}
