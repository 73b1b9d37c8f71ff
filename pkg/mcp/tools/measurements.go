// Package tools provides MCP tool implementations for oml2view.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/oml2view/pkg/models"
	"github.com/ekaya-inc/oml2view/pkg/services"
)

// MeasurementToolDeps contains dependencies for the measurement tools.
type MeasurementToolDeps struct {
	Catalog   services.CatalogService
	Inspector services.SchemaInspector
	Extractor services.SeriesExtractor
	Views     services.ViewService
	Backend   string
	Logger    *zap.Logger
}

// RegisterMeasurementTools registers the read-only experiment browsing and
// series extraction tools.
func RegisterMeasurementTools(s *server.MCPServer, deps *MeasurementToolDeps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	registerListExperimentsTool(s, deps)
	registerListTablesTool(s, deps)
	registerInspectTableTool(s, deps)
	registerGetDefaultViewTool(s, deps)
	registerExtractSeriesTool(s, deps)
	registerGetSendersTool(s, deps)
	registerGetMetadataTool(s, deps)
}

// readOnly are the annotations shared by every measurement tool.
func readOnly() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	}
}

func newReadOnlyTool(name string, opts ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, append(opts, readOnly()...)...)
}

func experimentParam() mcp.ToolOption {
	return mcp.WithString(
		"experiment",
		mcp.Required(),
		mcp.Description("Experiment name as returned by list_experiments (e.g., 'exp1')"),
	)
}

func tableParam() mcp.ToolOption {
	return mcp.WithString(
		"table",
		mcp.Required(),
		mcp.Description("Measurement point table as returned by list_tables (e.g., 'generator_sin')"),
	)
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// serviceError turns err into a structured result when the caller can fix it.
func serviceError(deps *MeasurementToolDeps, tool string, err error) (*mcp.CallToolResult, error) {
	if errResult := NewServiceErrorResult(err); errResult != nil {
		deps.Logger.Debug("Tool input error", zap.String("tool", tool), zap.Error(err))
		return errResult, nil
	}
	return nil, fmt.Errorf("%s failed: %w", tool, err)
}

func registerListExperimentsTool(s *server.MCPServer, deps *MeasurementToolDeps) {
	tool := newReadOnlyTool(
		"list_experiments",
		mcp.WithDescription("List the experiments held by the measurement store, sorted by name."),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		experiments, err := deps.Catalog.ListExperiments(ctx)
		if err != nil {
			return serviceError(deps, "list_experiments", err)
		}
		return jsonResult(map[string]any{
			"backend":     deps.Backend,
			"experiments": experiments,
		})
	})
}

func registerListTablesTool(s *server.MCPServer, deps *MeasurementToolDeps) {
	tool := newReadOnlyTool(
		"list_tables",
		mcp.WithDescription("List the measurement point tables of an experiment. "+
			"The store-internal _senders and _experiment_metadata tables are omitted; "+
			"use get_senders and get_metadata for them."),
		experimentParam(),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		experiment, errResult := requireName(req, "experiment")
		if errResult != nil {
			return errResult, nil
		}

		tables, err := deps.Catalog.ListTables(ctx, experiment)
		if err != nil {
			return serviceError(deps, "list_tables", err)
		}
		return jsonResult(map[string]any{
			"experiment": experiment,
			"tables":     tables,
		})
	})
}

func registerInspectTableTool(s *server.MCPServer, deps *MeasurementToolDeps) {
	tool := newReadOnlyTool(
		"inspect_table",
		mcp.WithDescription("Classify every column of a table as integer, real, text, blob or unknown "+
			"from sampled rows. An empty table has no columns."),
		experimentParam(),
		tableParam(),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		experiment, errResult := requireName(req, "experiment")
		if errResult != nil {
			return errResult, nil
		}
		table, errResult := requireName(req, "table")
		if errResult != nil {
			return errResult, nil
		}

		schema, err := deps.Inspector.Inspect(ctx, experiment, table)
		if err != nil {
			return serviceError(deps, "inspect_table", err)
		}
		return jsonResult(schema)
	})
}

func registerGetDefaultViewTool(s *server.MCPServer, deps *MeasurementToolDeps) {
	tool := newReadOnlyTool(
		"get_default_view",
		mcp.WithDescription("Suggest a chart selection for a table: x is oml_ts_server when numeric, "+
			"y the other numeric measurement columns, labels the text columns. "+
			"Saved views override the suggestion."),
		experimentParam(),
		tableParam(),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		experiment, errResult := requireName(req, "experiment")
		if errResult != nil {
			return errResult, nil
		}
		table, errResult := requireName(req, "table")
		if errResult != nil {
			return errResult, nil
		}

		view, err := deps.Views.DefaultView(ctx, experiment, table)
		if err != nil {
			return serviceError(deps, "get_default_view", err)
		}
		return jsonResult(view)
	})
}

func registerExtractSeriesTool(s *server.MCPServer, deps *MeasurementToolDeps) {
	tool := newReadOnlyTool(
		"extract_series",
		mcp.WithDescription("Extract columns of a table as series, one partition per distinct combination "+
			"of label values. Labels with fewer than two distinct values are pruned and reported. "+
			"NULL label values form their own partition. "+
			"Example: extract_series(experiment='exp1', table='generator_sin', columns=['oml_ts_server','value'], "+
			"labels=['channel'], order_by='oml_ts_server', filter='channel != \"NULL\"')"),
		experimentParam(),
		tableParam(),
		mcp.WithArray(
			"columns",
			mcp.Required(),
			mcp.Description("Output columns, in the order the series are wanted"),
			mcp.WithStringItems(),
		),
		mcp.WithArray(
			"labels",
			mcp.Description("Optional - candidate label columns to partition by"),
			mcp.WithStringItems(),
		),
		mcp.WithString(
			"order_by",
			mcp.Description("Optional - column to sort each partition's rows by"),
		),
		mcp.WithString(
			"filter",
			mcp.Description("Optional - boolean expression over label values selecting partitions, "+
				"e.g. 'channel == \"a\" or channel == \"NULL\"'. Values compare as text."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		experiment, errResult := requireName(req, "experiment")
		if errResult != nil {
			return errResult, nil
		}
		table, errResult := requireName(req, "table")
		if errResult != nil {
			return errResult, nil
		}

		columns, err := getStringSlice(req, "columns", deps.Logger)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}
		if len(columns) == 0 {
			return NewErrorResult("invalid_parameters", "parameter 'columns' must list at least one column"), nil
		}
		labels, err := getStringSlice(req, "labels", deps.Logger)
		if err != nil {
			return NewErrorResult("invalid_parameters", err.Error()), nil
		}

		extract := models.ExtractRequest{
			Columns: columns,
			Labels:  labels,
			OrderBy: getOptionalString(req, "order_by"),
			Filter:  getOptionalString(req, "filter"),
		}

		result, err := deps.Extractor.Extract(ctx, experiment, table, extract)
		if err != nil {
			return serviceError(deps, "extract_series", err)
		}
		return jsonResult(result)
	})
}

func registerGetSendersTool(s *server.MCPServer, deps *MeasurementToolDeps) {
	tool := newReadOnlyTool(
		"get_senders",
		mcp.WithDescription("List the senders of an experiment (name and the oml_sender_id they write), ordered by id."),
		experimentParam(),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		experiment, errResult := requireName(req, "experiment")
		if errResult != nil {
			return errResult, nil
		}

		senders, err := deps.Catalog.Senders(ctx, experiment)
		if err != nil {
			return serviceError(deps, "get_senders", err)
		}
		return jsonResult(map[string]any{
			"experiment": experiment,
			"senders":    senders,
		})
	})
}

func registerGetMetadataTool(s *server.MCPServer, deps *MeasurementToolDeps) {
	tool := newReadOnlyTool(
		"get_metadata",
		mcp.WithDescription("Return the key/value experiment metadata (e.g. start_time) of an experiment."),
		experimentParam(),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		experiment, errResult := requireName(req, "experiment")
		if errResult != nil {
			return errResult, nil
		}

		metadata, err := deps.Catalog.Metadata(ctx, experiment)
		if err != nil {
			return serviceError(deps, "get_metadata", err)
		}
		return jsonResult(map[string]any{
			"experiment": experiment,
			"metadata":   metadata,
		})
	})
}
