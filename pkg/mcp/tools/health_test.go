package tools

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHealthServer(version, backend string) *server.MCPServer {
	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterHealthTool(s, version, backend)
	return s
}

func TestHealthTool_ReportsVersionAndBackend(t *testing.T) {
	text, isError := callTool(t, newHealthServer("1.2.3", "postgres"), "health", map[string]any{})
	require.False(t, isError)

	var health healthResult
	require.NoError(t, json.Unmarshal([]byte(text), &health))
	assert.Equal(t, healthResult{Status: "ok", Version: "1.2.3", Backend: "postgres"}, health)
}

func TestHealthTool_EscapesVersion(t *testing.T) {
	version := `1.0.0-beta"rc`
	text, _ := callTool(t, newHealthServer(version, "sqlite"), "health", map[string]any{})

	var health healthResult
	require.NoError(t, json.Unmarshal([]byte(text), &health))
	assert.Equal(t, version, health.Version)
}
