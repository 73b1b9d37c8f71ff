// dump-series prints the partitions and series of one measurement table.
//
// Usage: go run ./scripts/dump-series [flags] <experiment> <table>
//
// Store connection: same config.yaml and environment variables as the server
// (OML_BACKEND, OML_SQLITE_DIR, PG*, MSSQL_*).
//
// Without -x and -y the table's default selection is used.
//
// Flags:
//
//	-x        X column
//	-y        comma-separated Y columns
//	-label    comma-separated label columns
//	-sort     order rows by the X column (default: true)
//	-filter   partition filter, e.g. 'channel == "a"'
//	-limit    values printed per series (default: 10, 0 for all)
//	-schema   print the inspected column kinds first
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap"

	_ "github.com/ekaya-inc/oml2view/pkg/adapters/datasource/sqlite"

	"github.com/ekaya-inc/oml2view/pkg/adapters/datasource"
	"github.com/ekaya-inc/oml2view/pkg/config"
	"github.com/ekaya-inc/oml2view/pkg/models"
	"github.com/ekaya-inc/oml2view/pkg/services"
)

func main() {
	x := flag.String("x", "", "X column")
	y := flag.String("y", "", "Comma-separated Y columns")
	labels := flag.String("label", "", "Comma-separated label columns")
	sortByX := flag.Bool("sort", true, "Order rows by the X column")
	filter := flag.String("filter", "", "Partition filter expression")
	limit := flag.Int("limit", 10, "Values printed per series (0 for all)")
	showSchema := flag.Bool("schema", false, "Print the inspected column kinds")
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <experiment> <table>\n\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}
	experiment, table := args[0], args[1]

	cfg, err := config.Load("dev")
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	if err := datasource.ValidateExperimentName(experiment); err != nil {
		fail("Invalid experiment: %v", err)
	}

	logger := zap.NewNop()
	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTLMinutes:     cfg.Datasource.ConnectionTTLMinutes,
		MaxConnections: 1,
		PoolMaxConns:   1,
		PoolMinConns:   1,
	}, logger)
	defer connMgr.Close()

	factory, err := datasource.NewDatasourceAdapterFactory(cfg.Store.Backend, cfg.Store.AdapterConfig(), connMgr)
	if err != nil {
		fail("Failed to create %s adapter factory: %v", cfg.Store.Backend, err)
	}

	ctx := context.Background()
	inspector := services.NewSchemaInspector(factory, cfg.Inspector.SampleRows, logger)
	extractor := services.NewSeriesExtractor(factory, logger)

	if *showSchema {
		schema, err := inspector.Inspect(ctx, experiment, table)
		if err != nil {
			fail("Failed to inspect %s: %v", table, err)
		}
		printSchema(schema)
	}

	req := models.SeriesRequest{
		X:      *x,
		Y:      splitFlag(*y),
		Labels: splitFlag(*labels),
		Sort:   *sortByX,
		Filter: *filter,
	}
	if req.X == "" && len(req.Y) == 0 {
		views, err := config.LoadViews(cfg.ViewsFile)
		if err != nil {
			fail("Failed to load views: %v", err)
		}
		req, err = services.NewViewService(inspector, views, logger).DefaultView(ctx, experiment, table)
		if err != nil {
			fail("Failed to derive default selection: %v", err)
		}
		if *labels != "" {
			req.Labels = splitFlag(*labels)
		}
		if *filter != "" {
			req.Filter = *filter
		}
		req.Sort = req.Sort || *sortByX
		color.Cyan("default selection: x=%s y=%s labels=%s", req.X, strings.Join(req.Y, ","), strings.Join(req.Labels, ","))
	}

	result, err := extractor.Extract(ctx, experiment, table, req.ExtractRequest())
	if err != nil {
		fail("Failed to extract series: %v", err)
	}
	printResult(result, *limit)
}

func printSchema(schema *models.TableSchema) {
	color.Cyan("%s/%s", schema.Experiment, schema.Table)
	for _, c := range schema.Columns {
		fmt.Printf("  %-24s %s\n", c.Name, c.Kind)
	}
	fmt.Println()
}

func printResult(result *models.SeriesResult, limit int) {
	header := color.New(color.FgGreen, color.Bold)
	dim := color.New(color.Faint)

	if len(result.PrunedLabels) > 0 {
		dim.Printf("pruned labels (single value): %s\n", strings.Join(result.PrunedLabels, ","))
	}

	for _, p := range result.Partitions {
		key := p.Key
		if key == "" {
			key = "(all rows)"
		}
		header.Printf("%s  [%d rows]\n", key, p.RowCount)

		for _, column := range result.Columns {
			series := p.Series[column]
			shown := series
			if limit > 0 && len(shown) > limit {
				shown = shown[:limit]
			}

			values := make([]string, len(shown))
			for i, v := range shown {
				values[i] = models.FormatValue(v)
			}
			fmt.Printf("  %-24s %s", column, strings.Join(values, " "))
			if len(shown) < len(series) {
				dim.Printf(" ... (+%d)", len(series)-len(shown))
			}
			fmt.Println()
		}
	}

	color.Cyan("%d partition(s)", len(result.Partitions))
}

func splitFlag(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fail(format string, args ...any) {
	color.New(color.FgRed).Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
