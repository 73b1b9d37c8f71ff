package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/oml2view/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/oml2view/pkg/models"
	"github.com/ekaya-inc/oml2view/pkg/services"
	"github.com/ekaya-inc/oml2view/pkg/testhelpers"
)

// newMeasurementServer registers the measurement tools over a SQLite data
// directory holding the fixture experiment "exp1".
func newMeasurementServer(t *testing.T) *server.MCPServer {
	t.Helper()

	logger := zaptest.NewLogger(t)
	dir := testhelpers.NewOMLDataDir(t, "exp1")

	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, logger)
	t.Cleanup(func() { connMgr.Close() })

	factory, err := datasource.NewDatasourceAdapterFactory("sqlite", map[string]any{"data_dir": dir}, connMgr)
	require.NoError(t, err)

	inspector := services.NewSchemaInspector(factory, services.DefaultSampleRows, logger)

	s := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(true))
	RegisterMeasurementTools(s, &MeasurementToolDeps{
		Catalog:   services.NewCatalogService(factory, logger),
		Inspector: inspector,
		Extractor: services.NewSeriesExtractor(factory, logger),
		Views:     services.NewViewService(inspector, nil, logger),
		Backend:   "sqlite",
		Logger:    logger,
	})
	return s
}

// callTool invokes a tool through the JSON-RPC entry point and returns the
// text of its first content item and the isError flag.
func callTool(t *testing.T, s *server.MCPServer, name string, args map[string]any) (string, bool) {
	t.Helper()

	argBytes, err := json.Marshal(args)
	require.NoError(t, err)

	request := fmt.Sprintf(`{"jsonrpc":"2.0","method":"tools/call","params":{"name":%q,"arguments":%s},"id":1}`, name, argBytes)
	result := s.HandleMessage(context.Background(), []byte(request))

	resultBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var response struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resultBytes, &response))
	require.Nil(t, response.Error, "unexpected JSON-RPC error")
	require.NotEmpty(t, response.Result.Content)

	return response.Result.Content[0].Text, response.Result.IsError
}

func decodeToolError(t *testing.T, text string) ErrorResponse {
	t.Helper()
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(text), &errResp))
	return errResp
}

func TestRegisterMeasurementTools_ListsAllTools(t *testing.T) {
	s := newMeasurementServer(t)

	result := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	resultBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var response struct {
		Result struct {
			Tools []struct {
				Name        string `json:"name"`
				Annotations struct {
					ReadOnlyHint *bool `json:"readOnlyHint"`
				} `json:"annotations"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resultBytes, &response))

	names := make([]string, 0, len(response.Result.Tools))
	for _, tool := range response.Result.Tools {
		names = append(names, tool.Name)
		require.NotNil(t, tool.Annotations.ReadOnlyHint, tool.Name)
		assert.True(t, *tool.Annotations.ReadOnlyHint, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"list_experiments", "list_tables", "inspect_table", "get_default_view",
		"extract_series", "get_senders", "get_metadata",
	}, names)
}

func TestListExperimentsTool(t *testing.T) {
	s := newMeasurementServer(t)

	text, isError := callTool(t, s, "list_experiments", map[string]any{})
	require.False(t, isError, text)

	var got struct {
		Backend     string   `json:"backend"`
		Experiments []string `json:"experiments"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.Equal(t, "sqlite", got.Backend)
	assert.Equal(t, []string{"exp1"}, got.Experiments)
}

func TestListTablesTool(t *testing.T) {
	s := newMeasurementServer(t)

	text, isError := callTool(t, s, "list_tables", map[string]any{"experiment": "exp1"})
	require.False(t, isError, text)

	var got struct {
		Tables []string `json:"tables"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.Equal(t, []string{"T", "T_single", "blobs", "empty_mp", "generator_sin", "sparse"}, got.Tables)
}

func TestInspectTableTool(t *testing.T) {
	s := newMeasurementServer(t)

	text, isError := callTool(t, s, "inspect_table", map[string]any{"experiment": "exp1", "table": "T"})
	require.False(t, isError, text)

	var schema models.TableSchema
	require.NoError(t, json.Unmarshal([]byte(text), &schema))
	assert.Equal(t, []models.Column{
		{Name: "x", Kind: models.KindInteger},
		{Name: "y", Kind: models.KindInteger},
		{Name: "g", Kind: models.KindText},
	}, schema.Columns)
}

func TestInspectTableTool_Errors(t *testing.T) {
	s := newMeasurementServer(t)

	tests := []struct {
		name string
		args map[string]any
		code string
	}{
		{name: "missing table argument", args: map[string]any{"experiment": "exp1"}, code: "invalid_parameters"},
		{name: "blank table", args: map[string]any{"experiment": "exp1", "table": "  "}, code: "invalid_parameters"},
		{name: "unknown table", args: map[string]any{"experiment": "exp1", "table": "nope"}, code: "not_found"},
		{name: "unknown experiment", args: map[string]any{"experiment": "nope", "table": "T"}, code: "not_found"},
		{name: "injected table", args: map[string]any{"experiment": "exp1", "table": "'; DROP TABLE users--"}, code: "invalid_identifier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isError := callTool(t, s, "inspect_table", tt.args)
			require.True(t, isError, text)
			assert.Equal(t, tt.code, decodeToolError(t, text).Code)
		})
	}
}

func TestGetDefaultViewTool(t *testing.T) {
	s := newMeasurementServer(t)

	text, isError := callTool(t, s, "get_default_view", map[string]any{"experiment": "exp1", "table": "generator_sin"})
	require.False(t, isError, text)

	var view models.SeriesRequest
	require.NoError(t, json.Unmarshal([]byte(text), &view))
	assert.Equal(t, "oml_ts_server", view.X)
	assert.Equal(t, []string{"value", "phase"}, view.Y)
	assert.True(t, view.Sort)

	text, isError = callTool(t, s, "get_default_view", map[string]any{"experiment": "exp1", "table": "empty_mp"})
	require.True(t, isError, text)
	assert.Equal(t, "empty_result", decodeToolError(t, text).Code)
}

func TestExtractSeriesTool(t *testing.T) {
	s := newMeasurementServer(t)

	text, isError := callTool(t, s, "extract_series", map[string]any{
		"experiment": "exp1",
		"table":      "T",
		"columns":    []string{"x", "y"},
		"labels":     []string{"g"},
		"order_by":   "x",
	})
	require.False(t, isError, text)

	var result models.SeriesResult
	require.NoError(t, json.Unmarshal([]byte(text), &result))
	require.Len(t, result.Partitions, 2)
	assert.Equal(t, "g=a", result.Partitions[0].Key)
	// JSON numbers decode as float64
	assert.Equal(t, []any{float64(1), float64(2)}, result.Partitions[0].Series["x"])
	assert.Equal(t, "g=b", result.Partitions[1].Key)
	assert.Equal(t, []any{float64(30)}, result.Partitions[1].Series["y"])
}

func TestExtractSeriesTool_PrunedAndFiltered(t *testing.T) {
	s := newMeasurementServer(t)

	text, isError := callTool(t, s, "extract_series", map[string]any{
		"experiment": "exp1",
		"table":      "generator_sin",
		"columns":    []string{"oml_ts_server", "value"},
		"labels":     []string{"label", "channel"},
		"filter":     `channel != "NULL"`,
	})
	require.False(t, isError, text)

	var result models.SeriesResult
	require.NoError(t, json.Unmarshal([]byte(text), &result))
	assert.Equal(t, []string{"channel"}, result.Labels)
	assert.Equal(t, []string{"label"}, result.PrunedLabels)
	assert.Len(t, result.Partitions, 2)
}

func TestExtractSeriesTool_Errors(t *testing.T) {
	s := newMeasurementServer(t)

	tests := []struct {
		name string
		args map[string]any
		code string
	}{
		{
			name: "no columns",
			args: map[string]any{"experiment": "exp1", "table": "T", "columns": []string{}},
			code: "invalid_parameters",
		},
		{
			name: "missing output column",
			args: map[string]any{"experiment": "exp1", "table": "T", "columns": []string{"x", "rssi"}},
			code: "not_found",
		},
		{
			name: "bad filter",
			args: map[string]any{"experiment": "exp1", "table": "T", "columns": []string{"x"}, "labels": []string{"g"}, "filter": "g =="},
			code: "invalid_parameters",
		},
		{
			name: "injected label",
			args: map[string]any{"experiment": "exp1", "table": "T", "columns": []string{"x"}, "labels": []string{"' OR '1'='1"}},
			code: "invalid_identifier",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, isError := callTool(t, s, "extract_series", tt.args)
			require.True(t, isError, text)
			assert.Equal(t, tt.code, decodeToolError(t, text).Code)
		})
	}
}

func TestGetSendersTool(t *testing.T) {
	s := newMeasurementServer(t)

	text, isError := callTool(t, s, "get_senders", map[string]any{"experiment": "exp1"})
	require.False(t, isError, text)

	var got struct {
		Senders []models.Sender `json:"senders"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.Equal(t, []models.Sender{{Name: "node1", ID: 1}, {Name: "node2", ID: 2}}, got.Senders)
}

func TestGetMetadataTool(t *testing.T) {
	s := newMeasurementServer(t)

	text, isError := callTool(t, s, "get_metadata", map[string]any{"experiment": "exp1"})
	require.False(t, isError, text)

	var got struct {
		Metadata map[string]string `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.Equal(t, "1700000000", got.Metadata["start_time"])
	assert.Equal(t, "fixture", got.Metadata["origin"])
}
