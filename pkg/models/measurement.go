package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ColumnKind is the scalar kind of a measurement column, inferred from the
// first non-null value found in a sample of rows.
type ColumnKind string

const (
	KindInteger ColumnKind = "integer"
	KindReal    ColumnKind = "real"
	KindText    ColumnKind = "text"
	KindBlob    ColumnKind = "blob"
	KindUnknown ColumnKind = "unknown" // every sampled value was NULL
)

// IsNumeric reports whether values of this kind can be plotted on an axis.
func (k ColumnKind) IsNumeric() bool {
	return k == KindInteger || k == KindReal
}

// OML2 adds these columns to every measurement point table.
const (
	ColumnSenderID = "oml_sender_id"
	ColumnSeq      = "oml_seq"
	ColumnTSClient = "oml_ts_client"
	ColumnTSServer = "oml_ts_server"
)

// IsMetadataColumn reports whether name is one of the OML2 metadata columns.
func IsMetadataColumn(name string) bool {
	switch name {
	case ColumnSenderID, ColumnSeq, ColumnTSClient, ColumnTSServer:
		return true
	}
	return false
}

// Store-internal tables, hidden from table listings.
const (
	TableSenders            = "_senders"
	TableExperimentMetadata = "_experiment_metadata"
)

// IsInternalTable reports whether name is a store-internal table.
func IsInternalTable(name string) bool {
	return name == TableSenders || name == TableExperimentMetadata
}

// Column is one result column of a table with its inferred kind.
type Column struct {
	Name string     `json:"name"`
	Kind ColumnKind `json:"kind"`
}

// TableSchema is the inspected shape of a table. Columns keep result order.
// A table with no rows has no columns.
type TableSchema struct {
	Experiment string   `json:"experiment"`
	Table      string   `json:"table"`
	Columns    []Column `json:"columns"`
}

// Kinds returns the column name to kind mapping.
func (s *TableSchema) Kinds() map[string]ColumnKind {
	kinds := make(map[string]ColumnKind, len(s.Columns))
	for _, c := range s.Columns {
		kinds[c.Name] = c.Kind
	}
	return kinds
}

// Column returns the named column.
func (s *TableSchema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// LabelValue is one label column's value within a partition. A nil Value is
// SQL NULL.
type LabelValue struct {
	Column string `json:"column"`
	Value  any    `json:"value"`
}

// Partition is one distinct combination of the active label values and the
// requested series for the rows carrying it.
type Partition struct {
	// Key renders the labels as "g=a,h=1". Empty for the unfiltered partition.
	Key      string           `json:"key"`
	Labels   []LabelValue     `json:"labels"`
	RowCount int              `json:"row_count"`
	Series   map[string][]any `json:"series"`
}

// LabelMap returns the partition's labels keyed by column.
func (p *Partition) LabelMap() map[string]any {
	m := make(map[string]any, len(p.Labels))
	for _, l := range p.Labels {
		m[l.Column] = l.Value
	}
	return m
}

// PartitionKey renders labels as "col=value" pairs joined by commas.
func PartitionKey(labels []LabelValue) string {
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = l.Column + "=" + FormatValue(l.Value)
	}
	return strings.Join(parts, ",")
}

// FormatValue renders a scalar for display. NULL renders as "NULL".
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case []byte:
		return fmt.Sprintf("x'%x'", val)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprint(val)
	}
}

// ExtractRequest selects the series to extract from a table.
type ExtractRequest struct {
	// Columns are the output columns, in the order series are wanted.
	Columns []string `json:"columns"`
	// Labels are candidate grouping columns; those with fewer than two
	// distinct values are pruned.
	Labels []string `json:"labels,omitempty"`
	// OrderBy optionally sorts every partition's rows by this column.
	OrderBy string `json:"order_by,omitempty"`
	// Filter is an optional boolean expression over label values that
	// partitions must satisfy.
	Filter string `json:"filter,omitempty"`
}

// SeriesResult is the outcome of an extraction.
type SeriesResult struct {
	Experiment   string      `json:"experiment"`
	Table        string      `json:"table"`
	Columns      []string    `json:"columns"`
	Labels       []string    `json:"labels"`
	PrunedLabels []string    `json:"pruned_labels"`
	Partitions   []Partition `json:"partitions"`
}

// SeriesRequest is a chart's selection: an X axis, Y series and labels.
type SeriesRequest struct {
	X      string   `json:"x"`
	Y      []string `json:"y"`
	Labels []string `json:"labels"`
	Sort   bool     `json:"sort"`
	Filter string   `json:"filter,omitempty"`
}

// ExtractRequest converts the chart selection into an extraction: X first,
// then each Y not already present. Sort orders rows by X.
func (r SeriesRequest) ExtractRequest() ExtractRequest {
	columns := make([]string, 0, len(r.Y)+1)
	seen := make(map[string]bool, len(r.Y)+1)
	for _, c := range append([]string{r.X}, r.Y...) {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		columns = append(columns, c)
	}

	req := ExtractRequest{
		Columns: columns,
		Labels:  r.Labels,
		Filter:  r.Filter,
	}
	if r.Sort && r.X != "" {
		req.OrderBy = r.X
	}
	return req
}

// Sender is a row of the _senders table.
type Sender struct {
	Name string `json:"name"`
	ID   int64  `json:"id"`
}
