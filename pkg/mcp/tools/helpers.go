package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// trimString removes leading and trailing whitespace from a string.
// This is a common helper used across MCP tool parameter validation.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return trimString(val)
}

// getStringSlice extracts an optional array of strings. Some MCP clients send
// arrays as stringified JSON ("[\"a\",\"b\"]"); those are parsed and a warning is
// logged. Blank elements are dropped. An absent key yields nil, nil.
func getStringSlice(req mcp.CallToolRequest, key string, logger *zap.Logger) ([]string, error) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil, nil
	}

	raw, present := args[key]
	if !present || raw == nil {
		return nil, nil
	}

	var items []any
	switch val := raw.(type) {
	case []any:
		items = val
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	case string:
		if err := json.Unmarshal([]byte(val), &items); err != nil {
			return nil, fmt.Errorf("parameter %q could not be parsed as an array; send a native JSON array: %w", key, err)
		}
		if logger != nil {
			logger.Warn("Array parameter sent as stringified JSON", zap.String("param", key))
		}
	default:
		return nil, fmt.Errorf("parameter %q must be an array of strings, got %T", key, raw)
	}

	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q element %d must be a string, got %T", key, i, item)
		}
		if s = trimString(s); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// requireName reads a required, non-blank string argument. A nil result
// means the value is usable; otherwise it is the error to return.
func requireName(req mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	val, err := req.RequireString(key)
	if err != nil {
		return "", NewErrorResult("invalid_parameters", err.Error())
	}
	val = trimString(val)
	if val == "" {
		return "", NewErrorResult("invalid_parameters", "parameter '"+key+"' cannot be empty")
	}
	return val, nil
}
