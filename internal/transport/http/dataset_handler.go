package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"distconsole/internal/dataset"
	apperrors "distconsole/internal/errors"
	"distconsole/internal/exporter"
	"distconsole/pkg/contracts/domain"
)

// DatasetHandler exposes the dataset source and its columns
type DatasetHandler struct {
	source           DatasetSource
	exporter         TableExporter
	errors           *apperrors.ErrorHandler
	defaultDataframe string
	logger           *slog.Logger
}

// NewDatasetHandler creates a dataset handler
func NewDatasetHandler(source DatasetSource, exp TableExporter, errorHandler *apperrors.ErrorHandler, defaultDataframe string, logger *slog.Logger) *DatasetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if errorHandler == nil {
		errorHandler = apperrors.NewErrorHandler(logger, false)
	}
	return &DatasetHandler{
		source:           source,
		exporter:         exp,
		errors:           errorHandler,
		defaultDataframe: defaultDataframe,
		logger:           logger.With(slog.String("handler", "dataset")),
	}
}

// Routes returns a chi router for dataset endpoints
func (h *DatasetHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Get)
	r.Post("/load", h.Load)
	r.Get("/columns", h.Columns)
	r.Get("/export", h.Export)
	return r
}

// LoadRequest selects the dataframe page to load
type LoadRequest struct {
	Name string `json:"name,omitempty"`
	Page int    `json:"page,omitempty"`
}

// Bind implements render.Binder
func (l *LoadRequest) Bind(r *http.Request) error {
	l.Name = strings.TrimSpace(l.Name)
	if l.Page < 1 {
		l.Page = 1
	}
	return nil
}

// ColumnsResponse lists the columns of the loaded dataset
type ColumnsResponse struct {
	Columns []domain.Column `json:"columns"`
	Headers []string        `json:"headers"`
}

// Get handles GET /api/dataset
func (h *DatasetHandler) Get(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.source.Snapshot())
}

// Load handles POST /api/dataset/load
func (h *DatasetHandler) Load(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := bind(r, &req); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	name := req.Name
	if name == "" {
		name = h.defaultDataframe
	}

	if err := h.source.Load(r.Context(), name, req.Page); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, h.source.Snapshot())
}

// Columns handles GET /api/dataset/columns
func (h *DatasetHandler) Columns(w http.ResponseWriter, r *http.Request) {
	cols := h.source.Columns()
	render.JSON(w, r, ColumnsResponse{Columns: cols, Headers: dataset.Headers(cols)})
}

// Export handles GET /api/dataset/export?format=xlsx|csv for the loaded page
func (h *DatasetHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := exporter.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.errors.HandleError(w, r, apperrors.InvalidParameter("format", err))
		return
	}
	ds := h.source.Snapshot().Dataset
	if ds == nil {
		h.errors.HandleError(w, r, apperrors.NotFoundError("dataset"))
		return
	}
	if err := writeExport(r.Context(), w, h.exporter, format, ds.Name, exporter.DatasetTable(ds)); err != nil {
		h.errors.HandleError(w, r, err)
	}
}
