package tools

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTrimString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"whitespace only", "   ", ""},
		{"leading whitespace", "  test", "test"},
		{"trailing whitespace", "test  ", "test"},
		{"both sides whitespace", "  test  ", "test"},
		{"tabs", "\ttest\t", "test"},
		{"newlines", "\ntest\n", "test"},
		{"mixed whitespace", " \t\ntest\n\t ", "test"},
		{"no whitespace", "test", "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := trimString(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestGetStringSlice(t *testing.T) {
	t.Run("native array", func(t *testing.T) {
		result, err := getStringSlice(toolRequest(map[string]any{"labels": []any{"channel", " g "}}), "labels", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"channel", "g"}, result)
	})

	t.Run("blank elements are dropped", func(t *testing.T) {
		result, err := getStringSlice(toolRequest(map[string]any{"labels": []any{"", "  ", "g"}}), "labels", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"g"}, result)
	})

	t.Run("absent key returns nil nil", func(t *testing.T) {
		result, err := getStringSlice(toolRequest(map[string]any{}), "labels", nil)
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("stringified array logs warning", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)

		result, err := getStringSlice(toolRequest(map[string]any{"columns": `["x","y"]`}), "columns", zap.New(core))
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "y"}, result)

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Contains(t, entry.Message, "stringified JSON")
		assert.Equal(t, "columns", entry.ContextMap()["param"])
	})

	t.Run("native array does not log warning", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)

		_, err := getStringSlice(toolRequest(map[string]any{"columns": []any{"x"}}), "columns", zap.New(core))
		require.NoError(t, err)
		assert.Equal(t, 0, logs.Len())
	})

	t.Run("unparsable string returns error with guidance", func(t *testing.T) {
		result, err := getStringSlice(toolRequest(map[string]any{"columns": "x,y"}), "columns", nil)
		require.Error(t, err)
		assert.Nil(t, result)
		assert.Contains(t, err.Error(), `parameter "columns"`)
		assert.Contains(t, err.Error(), "native JSON array")
	})

	t.Run("wrong type returns error with type info", func(t *testing.T) {
		_, err := getStringSlice(toolRequest(map[string]any{"columns": 123}), "columns", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "int")
	})

	t.Run("non-string element returns error", func(t *testing.T) {
		_, err := getStringSlice(toolRequest(map[string]any{"columns": []any{"x", 1.5}}), "columns", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "element 1")
	})
}

func TestGetOptionalString(t *testing.T) {
	req := toolRequest(map[string]any{"order_by": "  oml_ts_server ", "filter": 3})

	assert.Equal(t, "oml_ts_server", getOptionalString(req, "order_by"))
	assert.Equal(t, "", getOptionalString(req, "filter"))
	assert.Equal(t, "", getOptionalString(req, "missing"))
}

func TestRequireName(t *testing.T) {
	name, errResult := requireName(toolRequest(map[string]any{"table": " T "}), "table")
	assert.Nil(t, errResult)
	assert.Equal(t, "T", name)

	_, errResult = requireName(toolRequest(map[string]any{"table": "   "}), "table")
	require.NotNil(t, errResult)
	assert.True(t, errResult.IsError)

	_, errResult = requireName(toolRequest(map[string]any{}), "table")
	require.NotNil(t, errResult)
	assert.True(t, errResult.IsError)
}
