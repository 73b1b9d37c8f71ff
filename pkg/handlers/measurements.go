package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/oml2view/pkg/models"
	"github.com/ekaya-inc/oml2view/pkg/services"
)

// ListExperimentsResponse for GET /api/experiments.
type ListExperimentsResponse struct {
	Experiments []string `json:"experiments"`
}

// ListTablesResponse for GET /api/experiments/{exp}/tables.
type ListTablesResponse struct {
	Experiment string   `json:"experiment"`
	Tables     []string `json:"tables"`
}

// SendersResponse for GET /api/experiments/{exp}/senders.
type SendersResponse struct {
	Experiment string          `json:"experiment"`
	Senders    []models.Sender `json:"senders"`
}

// MetadataResponse for GET /api/experiments/{exp}/metadata.
type MetadataResponse struct {
	Experiment string            `json:"experiment"`
	Metadata   map[string]string `json:"metadata"`
}

// SeriesResponse for GET .../series: the resolved selection and its partitions.
type SeriesResponse struct {
	Request models.SeriesRequest `json:"request"`
	*models.SeriesResult
}

// MeasurementsHandler serves the experiment browsing and series endpoints.
type MeasurementsHandler struct {
	catalog   services.CatalogService
	inspector services.SchemaInspector
	extractor services.SeriesExtractor
	views     services.ViewService
	logger    *zap.Logger
}

// NewMeasurementsHandler creates a new measurements handler.
func NewMeasurementsHandler(
	catalog services.CatalogService,
	inspector services.SchemaInspector,
	extractor services.SeriesExtractor,
	views services.ViewService,
	logger *zap.Logger,
) *MeasurementsHandler {
	return &MeasurementsHandler{
		catalog:   catalog,
		inspector: inspector,
		extractor: extractor,
		views:     views,
		logger:    logger,
	}
}

// RegisterRoutes registers the measurements handler's routes on the given mux.
func (h *MeasurementsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/experiments", h.ListExperiments)
	mux.HandleFunc("GET /api/experiments/{exp}/tables", h.ListTables)
	mux.HandleFunc("GET /api/experiments/{exp}/senders", h.Senders)
	mux.HandleFunc("GET /api/experiments/{exp}/metadata", h.Metadata)

	mux.HandleFunc("GET /api/experiments/{exp}/tables/{table}/schema", h.Schema)
	mux.HandleFunc("GET /api/experiments/{exp}/tables/{table}/defaults", h.Defaults)
	mux.HandleFunc("GET /api/experiments/{exp}/tables/{table}/series", h.Series)
}

// ListExperiments handles GET /api/experiments
func (h *MeasurementsHandler) ListExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := h.catalog.ListExperiments(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list experiments")
		return
	}
	writeData(w, h.logger, ListExperimentsResponse{Experiments: experiments})
}

// ListTables handles GET /api/experiments/{exp}/tables
func (h *MeasurementsHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	experiment, ok := ParseExperiment(w, r, h.logger)
	if !ok {
		return
	}

	tables, err := h.catalog.ListTables(r.Context(), experiment)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list tables", zap.String("experiment", experiment))
		return
	}
	writeData(w, h.logger, ListTablesResponse{Experiment: experiment, Tables: tables})
}

// Senders handles GET /api/experiments/{exp}/senders
func (h *MeasurementsHandler) Senders(w http.ResponseWriter, r *http.Request) {
	experiment, ok := ParseExperiment(w, r, h.logger)
	if !ok {
		return
	}

	senders, err := h.catalog.Senders(r.Context(), experiment)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to read senders", zap.String("experiment", experiment))
		return
	}
	writeData(w, h.logger, SendersResponse{Experiment: experiment, Senders: senders})
}

// Metadata handles GET /api/experiments/{exp}/metadata
func (h *MeasurementsHandler) Metadata(w http.ResponseWriter, r *http.Request) {
	experiment, ok := ParseExperiment(w, r, h.logger)
	if !ok {
		return
	}

	metadata, err := h.catalog.Metadata(r.Context(), experiment)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to read experiment metadata", zap.String("experiment", experiment))
		return
	}
	writeData(w, h.logger, MetadataResponse{Experiment: experiment, Metadata: metadata})
}

// Schema handles GET /api/experiments/{exp}/tables/{table}/schema
// Returns the column kinds inferred from sampled rows.
func (h *MeasurementsHandler) Schema(w http.ResponseWriter, r *http.Request) {
	experiment, table, ok := ParseExperimentAndTable(w, r, h.logger)
	if !ok {
		return
	}

	schema, err := h.inspector.Inspect(r.Context(), experiment, table)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to inspect table",
			zap.String("experiment", experiment), zap.String("table", table))
		return
	}
	writeData(w, h.logger, schema)
}

// Defaults handles GET /api/experiments/{exp}/tables/{table}/defaults
// Returns the selection a chart of this table starts with.
func (h *MeasurementsHandler) Defaults(w http.ResponseWriter, r *http.Request) {
	experiment, table, ok := ParseExperimentAndTable(w, r, h.logger)
	if !ok {
		return
	}

	req, err := h.views.DefaultView(r.Context(), experiment, table)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to derive default selection",
			zap.String("experiment", experiment), zap.String("table", table))
		return
	}
	writeData(w, h.logger, req)
}

// Series handles GET /api/experiments/{exp}/tables/{table}/series
// Without x and y the table's default selection is used, with any label,
// filter or sort parameters applied on top of it.
func (h *MeasurementsHandler) Series(w http.ResponseWriter, r *http.Request) {
	experiment, table, ok := ParseExperimentAndTable(w, r, h.logger)
	if !ok {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()

	var (
		req models.SeriesRequest
		err error
	)
	if q.Get("x") == "" && len(q["y"]) == 0 {
		req, err = h.views.DefaultView(ctx, experiment, table)
		if err == nil {
			req, err = overlaySeriesQuery(req, q)
		}
	} else {
		req, err = parseSeriesQuery(q)
	}
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to resolve series selection",
			zap.String("experiment", experiment), zap.String("table", table))
		return
	}

	result, err := h.extractor.Extract(ctx, experiment, table, req.ExtractRequest())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to extract series",
			zap.String("experiment", experiment), zap.String("table", table))
		return
	}
	writeData(w, h.logger, SeriesResponse{Request: req, SeriesResult: result})
}
